package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/adiwendra/fakturo/internal/merchant"
)

const WarnItemsWithoutPrice = "items_without_price"

// InterpretRequest carries the raw message plus optional caller-supplied
// customer/items used to seed the deterministic fallback when the completion
// output is unusable.
type InterpretRequest struct {
	Message  string
	Customer *PartialCustomer
	Items    []PartialLineItem
}

type Interpreter struct {
	caller  LLMCaller
	timeout time.Duration
	now     func() time.Time
}

func NewInterpreter(caller LLMCaller) *Interpreter {
	return &Interpreter{caller: caller, timeout: DefaultCallTimeout, now: time.Now}
}

// Interpret runs the full pipeline: prompt → completion → parse/validate →
// coerce → rule extraction. Collaborator failures and malformed output degrade
// to the deterministic fallback draft; the only hard error is invalid input.
func (i *Interpreter) Interpret(ctx context.Context, req InterpretRequest, snapshot merchant.CatalogSnapshot, profile merchant.BusinessProfile) (*ExtractedOrder, error) {
	ctx, span := otel.Tracer("fakturo/intake").Start(ctx, "interpret")
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if len(message) < MinMessageChars {
		return nil, errors.New("order message is too short to interpret")
	}
	message = truncateRunes(message, MaxMessageChars)

	order := i.draftFromCompletion(ctx, message, snapshot, profile, req)
	i.normalize(order, profile)
	ApplyRules(order, message)
	finalizeTotals(order, profile)

	span.SetAttributes(
		attribute.Int("intake.items", len(order.Items)),
		attribute.Bool("intake.fallback", order.Fallback),
		attribute.Float64("intake.grand_total", order.GrandTotal),
	)
	return order, nil
}

func (i *Interpreter) draftFromCompletion(ctx context.Context, message string, snapshot merchant.CatalogSnapshot, profile merchant.BusinessProfile, req InterpretRequest) *ExtractedOrder {
	catalog := SerializeCatalog(snapshot)
	prompt := BuildPrompt(message, snapshot, profile)

	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	raw, err := callWithRetry(callCtx, i.caller, prompt, maxTokensForCatalog(len(catalog)))
	if err != nil {
		log.Printf("intake completion_failed fallback=true err=%q", err.Error())
		return i.fallbackDraft(req, "")
	}
	payload, err := parseDraft(raw)
	if err != nil {
		log.Printf("intake completion_invalid fallback=true err=%q response_chars=%d", err.Error(), len(raw))
		return i.fallbackDraft(req, raw)
	}

	items := make([]PartialLineItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, PartialLineItem{
			ProductName: strings.TrimSpace(it.ProductName),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	return &ExtractedOrder{
		InvoiceNumber: strings.TrimSpace(payload.InvoiceNumber),
		Date:          strings.TrimSpace(payload.Date),
		DueDate:       strings.TrimSpace(payload.DueDate),
		Customer:      payload.Customer,
		Items:         items,
		Subtotal:      payload.Subtotal,
		Tax:           payload.Tax,
		GrandTotal:    payload.Total,
		Terms:         strings.TrimSpace(payload.Terms),
		ThankYouNote:  strings.TrimSpace(payload.ThankYou),
	}
}

// fallbackDraft is the mandatory degraded path: the pipeline always returns an
// invoice-shaped object. Caller-supplied customer/items win; otherwise a
// minimal skeleton is produced and the raw model output is kept as a note.
func (i *Interpreter) fallbackDraft(req InterpretRequest, rawOutput string) *ExtractedOrder {
	order := &ExtractedOrder{Fallback: true, Items: []PartialLineItem{}}
	if req.Customer != nil {
		order.Customer = *req.Customer
	}
	order.Items = append(order.Items, req.Items...)
	if rawOutput != "" {
		note := truncateRunes(strings.TrimSpace(rawOutput), 2000)
		order.Notes = "unparsed model output: " + note
	}
	order.Warnings = append(order.Warnings, "interpretation_degraded")
	return order
}

// normalize coerces the untrusted numeric fields: money is non-negative and
// whole-unit, quantities default to 1, and line totals obey
// lineTotal == quantity * unitPrice. Zero unit prices are kept and flagged.
func (i *Interpreter) normalize(order *ExtractedOrder, profile merchant.BusinessProfile) {
	if order.Date == "" {
		order.Date = i.now().Format("2006-01-02")
	}
	if order.DueDate == "" {
		order.DueDate = i.now().AddDate(0, 0, 7).Format("2006-01-02")
	}
	if order.Terms == "" {
		order.Terms = profile.PaymentTerms
	}
	if order.ThankYouNote == "" {
		order.ThankYouNote = profile.ThankYouMessage
	}
	order.Customer.Name = strings.TrimSpace(order.Customer.Name)
	order.Customer.Email = strings.TrimSpace(order.Customer.Email)

	unpriced := 0
	for idx := range order.Items {
		it := &order.Items[idx]
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		it.UnitPrice = roundMoney(it.UnitPrice)
		it.LineTotal = roundMoney(it.Quantity * it.UnitPrice)
		if it.UnitPrice == 0 {
			unpriced++
		}
	}
	if unpriced > 0 {
		order.Warnings = appendWarning(order.Warnings, WarnItemsWithoutPrice)
	}
}

// finalizeTotals recomputes the money pyramid after rule extraction. The
// merchant-configured tax rate is the only rate applied anywhere.
func finalizeTotals(order *ExtractedOrder, profile merchant.BusinessProfile) {
	subtotal := 0.0
	for _, it := range order.Items {
		subtotal += it.LineTotal
	}
	if subtotal > 0 || order.Subtotal < 0 {
		order.Subtotal = roundMoney(subtotal)
	}

	switch order.DiscountType {
	case DiscountPercentage:
		order.DiscountAmount = roundMoney(order.Subtotal * order.Discount / 100)
	case DiscountFixed:
		order.DiscountAmount = roundMoney(math.Min(order.Discount, order.Subtotal))
	default:
		order.DiscountAmount = 0
	}

	taxable := order.Subtotal - order.DiscountAmount
	if profile.TaxEnabled {
		order.Tax = roundMoney(taxable * profile.TaxRate / 100)
	} else if order.Tax < 0 {
		order.Tax = 0
	} else {
		order.Tax = roundMoney(order.Tax)
	}
	order.Shipping = roundMoney(order.Shipping)
	order.GrandTotal = taxable + order.Tax + order.Shipping

	order.PaymentSchedule.Recompute(order.GrandTotal)
	if order.PaymentSchedule != nil {
		if order.PaymentSchedule.DownPayment.DueDate == "" {
			order.PaymentSchedule.DownPayment.DueDate = DueImmediately
		}
		if order.PaymentSchedule.RemainingBalance.DueDate == "" {
			order.PaymentSchedule.RemainingBalance.DueDate = order.DueDate
		}
	}
}

// truncateRunes caps s at max bytes without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func roundMoney(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v)
}

func appendWarning(warnings []string, w string) []string {
	for _, existing := range warnings {
		if existing == w {
			return warnings
		}
	}
	return append(warnings, w)
}

// DraftSummary is a one-line log form of the extraction outcome.
func DraftSummary(order *ExtractedOrder) string {
	return fmt.Sprintf("customer=%q items=%d subtotal=%.0f total=%.0f fallback=%t", order.Customer.Name, len(order.Items), order.Subtotal, order.GrandTotal, order.Fallback)
}
