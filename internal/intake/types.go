// Package intake turns a merchant's free-form order message into a structured,
// priced invoice draft. The completion collaborator produces an untrusted
// draft; deterministic validation, coercion and rule extraction run on top of
// it before anything reaches persistence.
package intake

const (
	MaxMessageChars = 8000
	MinMessageChars = 3
)

type DiscountType string

const (
	DiscountNone       DiscountType = ""
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type ScheduleType string

const (
	ScheduleFull        ScheduleType = "full"
	ScheduleDownPayment ScheduleType = "down_payment"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

const (
	DueImmediately      = "immediately"
	DueOnInvoiceDueDate = "on invoice due date"
)

type PartialCustomer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// PartialLineItem is one extracted order line. A zero UnitPrice is a valid
// "free item" state surfaced as a warning, never an error.
type PartialLineItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

type Installment struct {
	Percentage float64           `json:"percentage,omitempty"`
	Amount     float64           `json:"amount"`
	DueDate    string            `json:"due_date"`
	Status     InstallmentStatus `json:"status"`
}

type PaymentSchedule struct {
	ScheduleType     ScheduleType `json:"schedule_type"`
	DownPayment      Installment  `json:"down_payment"`
	RemainingBalance Installment  `json:"remaining_balance"`
}

// Recompute re-derives both installment amounts from the grand total so they
// are never left stale. The remainder is taken by subtraction, which keeps
// down_payment.amount + remaining_balance.amount == grandTotal exact.
func (s *PaymentSchedule) Recompute(grandTotal float64) {
	if s == nil {
		return
	}
	down := s.DownPayment.Amount
	if s.DownPayment.Percentage > 0 {
		down = roundMoney(grandTotal * s.DownPayment.Percentage / 100)
	}
	if down > grandTotal {
		down = grandTotal
	}
	s.DownPayment.Amount = down
	s.RemainingBalance.Amount = grandTotal - down
}

// ExtractedOrder is the structured draft produced per request. It is owned by
// the interpreter until handed off to the invoice lifecycle and is never
// persisted directly.
type ExtractedOrder struct {
	InvoiceNumber   string            `json:"invoice_number"`
	Date            string            `json:"date"`
	DueDate         string            `json:"due_date"`
	Customer        PartialCustomer   `json:"customer"`
	Items           []PartialLineItem `json:"items"`
	Subtotal        float64           `json:"subtotal"`
	Discount        float64           `json:"discount,omitempty"`
	DiscountType    DiscountType      `json:"discount_type,omitempty"`
	DiscountAmount  float64           `json:"discount_amount,omitempty"`
	Shipping        float64           `json:"shipping,omitempty"`
	Tax             float64           `json:"tax"`
	GrandTotal      float64           `json:"grand_total"`
	PaymentSchedule *PaymentSchedule  `json:"payment_schedule,omitempty"`
	Terms           string            `json:"terms,omitempty"`
	ThankYouNote    string            `json:"thank_you_message,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Fallback        bool              `json:"fallback,omitempty"`
}

// draftPayload is the exact JSON shape the completion collaborator is asked
// to produce. It is decoded strictly and validated against the draft schema
// before being coerced into an ExtractedOrder.
type draftPayload struct {
	InvoiceNumber string          `json:"invoice_number"`
	Date          string          `json:"date"`
	DueDate       string          `json:"due_date"`
	Customer      PartialCustomer `json:"customer"`
	Items         []draftLineItem `json:"items"`
	Subtotal      float64         `json:"subtotal"`
	Tax           float64         `json:"tax"`
	Total         float64         `json:"total"`
	Terms         string          `json:"terms"`
	ThankYou      string          `json:"thank_you_message"`
}

type draftLineItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}
