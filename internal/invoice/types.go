// Package invoice owns the persisted invoice aggregate and the state machine
// that moves it from preview through confirmation and the two-installment
// payment stages.
package invoice

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
)

type PaymentStage string

const (
	StageFullPayment  PaymentStage = "full_payment"
	StageDownPayment  PaymentStage = "down_payment"
	StageFinalPayment PaymentStage = "final_payment"
	StageCompleted    PaymentStage = "completed"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
)

// Invoice is the durable aggregate created on confirm. It is mutated only
// through explicit stage-transition operations.
type Invoice struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	Date    string `json:"date"`
	DueDate string `json:"due_date"`
	// OriginalDueDate survives the down-payment transition, which rewrites
	// DueDate to the remaining-balance due date.
	OriginalDueDate string `json:"original_due_date"`

	Merchant merchant.BusinessProfile `json:"merchant"`
	Customer intake.PartialCustomer   `json:"customer"`

	Items          []intake.PartialLineItem `json:"items"`
	Subtotal       float64                  `json:"subtotal"`
	Discount       float64                  `json:"discount,omitempty"`
	DiscountType   intake.DiscountType      `json:"discount_type,omitempty"`
	DiscountAmount float64                  `json:"discount_amount,omitempty"`
	Shipping       float64                  `json:"shipping,omitempty"`
	Tax            float64                  `json:"tax"`
	GrandTotal     float64                  `json:"grand_total"`

	PaymentSchedule    *intake.PaymentSchedule `json:"payment_schedule,omitempty"`
	PaymentStage       PaymentStage            `json:"payment_stage"`
	PaymentStatus      PaymentStatus           `json:"payment_status"`
	FinalPaymentAmount float64                 `json:"final_payment_amount,omitempty"`

	// CustomerToken grants general access to the customer-facing invoice
	// page; FinalPaymentToken is minted only when the down payment is
	// confirmed and scopes the final-payment page.
	CustomerToken     string `json:"customer_token,omitempty"`
	FinalPaymentToken string `json:"final_payment_token,omitempty"`

	Terms        string   `json:"terms,omitempty"`
	ThankYouNote string   `json:"thank_you_message,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`

	// Preview marks a non-persisted draft; the ID of a preview is a local
	// correlation id only.
	Preview bool `json:"preview,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// newToken mints an opaque capability string. Tokens carry no structure and
// are never reused across invoices.
func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func newID() string { return uuid.NewString() }

func newInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "INV-" + now.Format("20060102") + "-" + suffix
}

func previewID() string {
	return "PRV-" + newToken()[:12]
}
