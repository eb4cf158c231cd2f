package intake

import (
	"regexp"
	"strconv"
	"strings"
)

// Rule extraction runs after the completion draft and owns two message-level
// facts the model is known to conflate: discounts and down-payment schedules.
// Discount extraction runs first and consumes its phrase; the down-payment
// rule only ever sees the masked remainder, so "discount 10%" can never be
// reinterpreted as a 10% down payment.

var (
	discountRe = regexp.MustCompile(`(?i)\b(discount|diskon|potongan)\b[^0-9%]{0,16}(\d+(?:[.,]\d+)*)\s*(%|persen|jt|juta|rb|ribu|k)?`)
	downPayRe  = regexp.MustCompile(`(?i)\b(dp|down\s*payment|uang\s*muka|deposit)\b[^0-9%]{0,16}(\d+(?:[.,]\d+)*)\s*(%|persen|jt|juta|rb|ribu|k)?`)
)

// Due-date phrases override the installment defaults. The captured date stays
// a verbatim phrase; schedule due dates are strings end to end.
const datePhrase = `(\d{4}-\d{2}-\d{2}` +
	`|\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?` +
	`|\d{1,2}\s+(?:jan(?:uari|uary)?|feb(?:ruari|ruary)?|mar(?:et|ch)?|apr(?:il)?|mei|may|jun[ie]?|jul[iy]?|agustus|aug(?:ust)?|sep(?:tember)?|okt(?:ober)?|oct(?:ober)?|nov(?:ember)?|des(?:ember)?|dec(?:ember)?)\b(?:\s+\d{4})?)`

var (
	// dpDueRe is anchored: it only fires when the phrase directly trails the
	// down-payment amount ("DP 30% due 1 September").
	dpDueRe        = regexp.MustCompile(`(?i)^[\s,]{0,4}(?:due|jatuh\s*tempo)\b[^0-9]{0,8}` + datePhrase)
	remainingDueRe = regexp.MustCompile(`(?i)\b(?:pelunasan|sisa(?:nya)?|remaining|balance)\b[^0-9]{0,24}` + datePhrase)
)

// ApplyRules is an idempotent, pure transform over the draft: it rewrites the
// discount and payment-schedule fields from the raw message, overriding
// whatever the completion proposed for those fields.
func ApplyRules(order *ExtractedOrder, rawMessage string) {
	masked := extractDiscount(order, rawMessage)
	extractDownPayment(order, masked)
}

// extractDiscount records an explicit discount phrase and returns the message
// with the consumed phrase masked out.
func extractDiscount(order *ExtractedOrder, message string) string {
	m := discountRe.FindStringSubmatchIndex(message)
	if m == nil {
		return message
	}
	value, isPercent := parseAmountToken(message[m[4]:m[5]], submatch(message, m, 3))
	if value <= 0 {
		return message
	}
	if isPercent {
		if value > 100 {
			value = 100
		}
		order.Discount = value
		order.DiscountType = DiscountPercentage
	} else {
		order.Discount = value
		order.DiscountType = DiscountFixed
	}
	return message[:m[0]] + strings.Repeat(" ", m[1]-m[0]) + message[m[1]:]
}

// extractDownPayment installs a schedule only when an explicit down-payment
// keyword survives discount masking. A model-proposed schedule without a
// keyword in the message is dropped: that shape is the known
// discount-mistagged-as-DP confusion.
func extractDownPayment(order *ExtractedOrder, masked string) {
	m := downPayRe.FindStringSubmatchIndex(masked)
	if m == nil {
		order.PaymentSchedule = nil
		return
	}
	value, isPercent := parseAmountToken(masked[m[4]:m[5]], submatch(masked, m, 3))
	if value <= 0 {
		order.PaymentSchedule = nil
		return
	}
	sched := &PaymentSchedule{
		ScheduleType: ScheduleDownPayment,
		DownPayment: Installment{
			DueDate: DueImmediately,
			Status:  InstallmentPending,
		},
		RemainingBalance: Installment{
			DueDate: DueOnInvoiceDueDate,
			Status:  InstallmentPending,
		},
	}
	if isPercent {
		if value > 100 {
			value = 100
		}
		sched.DownPayment.Percentage = value
	} else {
		sched.DownPayment.Amount = value
	}
	if order.DueDate != "" {
		sched.RemainingBalance.DueDate = order.DueDate
	}
	if dm := dpDueRe.FindStringSubmatch(masked[m[1]:]); dm != nil {
		sched.DownPayment.DueDate = strings.TrimSpace(dm[1])
	}
	if rm := remainingDueRe.FindStringSubmatch(masked); rm != nil {
		sched.RemainingBalance.DueDate = strings.TrimSpace(rm[1])
	}
	order.PaymentSchedule = sched
}

func submatch(s string, idx []int, group int) string {
	lo, hi := idx[2*group], idx[2*group+1]
	if lo < 0 {
		return ""
	}
	return s[lo:hi]
}

// parseAmountToken turns a matched numeric token plus its suffix into either
// a percentage or an absolute amount. Dots grouping digits in threes are
// thousand separators ("16.500.000"); a comma is a decimal point ("1,5jt").
func parseAmountToken(num, suffix string) (value float64, isPercent bool) {
	num = strings.TrimSpace(num)
	if thousandsRe.MatchString(num) {
		num = strings.ReplaceAll(num, ".", "")
	}
	num = strings.ReplaceAll(num, ",", ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSpace(suffix)) {
	case "%", "persen":
		return v, true
	case "jt", "juta":
		return v * 1_000_000, false
	case "rb", "ribu", "k":
		return v * 1_000, false
	default:
		// A bare small number after a discount/DP keyword is conventionally a
		// percentage ("discount 10"), a large one an absolute amount.
		if v <= 100 {
			return v, true
		}
		return v, false
	}
}

var thousandsRe = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
