package invoice

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
)

// Store is the slice of the persistence collaborator the lifecycle needs.
// UpdateStage must be atomic per invoice: it reads the current record, checks
// the stage precondition, applies mutate and writes back in one conditional
// operation, so two concurrent confirmations cannot both succeed.
type Store interface {
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	SaveInvoice(ctx context.Context, inv *Invoice) error
	UpdateStage(ctx context.Context, id string, expect PaymentStage, mutate func(*Invoice) error) (*Invoice, error)
}

// OrderCreator is the order-management collaborator, invoked only on
// final-payment completion. Its failure never fails the payment confirmation.
type OrderCreator interface {
	CreateOrderFromInvoice(ctx context.Context, invoiceID string) (string, error)
}

type Lifecycle struct {
	store  Store
	orders OrderCreator
	now    func() time.Time
}

func NewLifecycle(store Store, orders OrderCreator) *Lifecycle {
	return &Lifecycle{store: store, orders: orders, now: time.Now}
}

// Preview shapes a draft into the full invoice form without any writes. The
// id it carries is for client-side correlation only and is never persisted.
func (l *Lifecycle) Preview(draft *intake.ExtractedOrder, profile merchant.BusinessProfile) *Invoice {
	inv := fromDraft(draft, profile, l.now())
	inv.ID = previewID()
	inv.Preview = true
	return inv
}

// Confirm persists a reviewed draft as a durable invoice, merging the
// authoritative business-profile fields and minting the customer token. This
// is the only transition that creates the record.
func (l *Lifecycle) Confirm(ctx context.Context, draft *intake.ExtractedOrder, profile merchant.BusinessProfile) (*Invoice, error) {
	ctx, span := otel.Tracer("fakturo/invoice").Start(ctx, "confirm")
	defer span.End()

	if strings.TrimSpace(draft.Customer.Name) == "" {
		return nil, NewValidationError("confirm requires a customer name")
	}
	if len(draft.Items) == 0 {
		return nil, NewValidationError("confirm requires at least one item")
	}

	now := l.now()
	inv := fromDraft(draft, profile, now)
	inv.CustomerToken = newToken()
	if err := l.store.SaveInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("save invoice: %w", err)
	}
	span.SetAttributes(attribute.String("invoice.id", inv.ID), attribute.String("invoice.stage", string(inv.PaymentStage)))
	log.Printf("invoice confirmed id=%s number=%s stage=%s total=%.0f", inv.ID, inv.Number, inv.PaymentStage, inv.GrandTotal)
	return inv, nil
}

// ConfirmDownPayment moves down_payment → final_payment: marks the first
// installment paid, recomputes the remaining balance, mints the final-payment
// token and preserves the original due date before rewriting DueDate.
func (l *Lifecycle) ConfirmDownPayment(ctx context.Context, id string) (*Invoice, error) {
	ctx, span := otel.Tracer("fakturo/invoice").Start(ctx, "confirm_down_payment")
	defer span.End()

	inv, err := l.store.UpdateStage(ctx, id, StageDownPayment, func(inv *Invoice) error {
		if inv.PaymentSchedule == nil || inv.PaymentSchedule.ScheduleType != intake.ScheduleDownPayment {
			return NewValidationError("invoice has no down-payment schedule")
		}
		sched := inv.PaymentSchedule
		finalAmount := inv.GrandTotal - sched.DownPayment.Amount

		sched.DownPayment.Status = intake.InstallmentPaid
		sched.RemainingBalance.Amount = finalAmount
		sched.RemainingBalance.Status = intake.InstallmentPending

		inv.FinalPaymentAmount = finalAmount
		inv.FinalPaymentToken = newToken()
		inv.PaymentStage = StageFinalPayment
		inv.PaymentStatus = StatusPartial
		if due := sched.RemainingBalance.DueDate; due != "" && due != intake.DueOnInvoiceDueDate {
			inv.DueDate = due
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("invoice.id", inv.ID), attribute.Float64("invoice.final_amount", inv.FinalPaymentAmount))
	log.Printf("invoice down_payment_confirmed id=%s final_amount=%.0f", inv.ID, inv.FinalPaymentAmount)
	return inv, nil
}

// ConfirmFinalPayment moves final_payment → completed and triggers order
// creation downstream. Payment truth and order bookkeeping are decoupled: an
// order-creation failure is logged and surfaced on the result, never rolled
// back into the payment.
func (l *Lifecycle) ConfirmFinalPayment(ctx context.Context, id string) (*Invoice, error) {
	ctx, span := otel.Tracer("fakturo/invoice").Start(ctx, "confirm_final_payment")
	defer span.End()

	inv, err := l.store.UpdateStage(ctx, id, StageFinalPayment, func(inv *Invoice) error {
		if inv.PaymentSchedule != nil {
			inv.PaymentSchedule.RemainingBalance.Status = intake.InstallmentPaid
		}
		inv.PaymentStage = StageCompleted
		inv.PaymentStatus = StatusPaid
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("invoice final_payment_confirmed id=%s", inv.ID)

	if l.orders != nil {
		if orderID, err := l.orders.CreateOrderFromInvoice(ctx, inv.ID); err != nil {
			log.Printf("invoice order_creation_failed id=%s err=%q", inv.ID, err.Error())
			span.SetAttributes(attribute.Bool("invoice.order_created", false))
		} else {
			log.Printf("invoice order_created id=%s order=%s", inv.ID, orderID)
			span.SetAttributes(attribute.String("invoice.order_id", orderID))
		}
	}
	return inv, nil
}

// fromDraft builds the invoice shape shared by preview and confirm.
func fromDraft(draft *intake.ExtractedOrder, profile merchant.BusinessProfile, now time.Time) *Invoice {
	number := draft.InvoiceNumber
	if strings.TrimSpace(number) == "" {
		number = newInvoiceNumber(now)
	}
	stage := StageFullPayment
	if draft.PaymentSchedule != nil && draft.PaymentSchedule.ScheduleType == intake.ScheduleDownPayment {
		stage = StageDownPayment
	}
	terms := draft.Terms
	if terms == "" {
		terms = profile.PaymentTerms
	}
	thanks := draft.ThankYouNote
	if thanks == "" {
		thanks = profile.ThankYouMessage
	}
	items := make([]intake.PartialLineItem, len(draft.Items))
	copy(items, draft.Items)

	var sched *intake.PaymentSchedule
	if draft.PaymentSchedule != nil {
		s := *draft.PaymentSchedule
		// Caller-supplied amounts are untrusted; re-derive the split so the
		// installments always sum to the grand total.
		s.Recompute(draft.GrandTotal)
		sched = &s
	}

	return &Invoice{
		ID:              newID(),
		Number:          number,
		Date:            draft.Date,
		DueDate:         draft.DueDate,
		OriginalDueDate: draft.DueDate,
		Merchant:        profile,
		Customer:        draft.Customer,
		Items:           items,
		Subtotal:        draft.Subtotal,
		Discount:        draft.Discount,
		DiscountType:    draft.DiscountType,
		DiscountAmount:  draft.DiscountAmount,
		Shipping:        draft.Shipping,
		Tax:             draft.Tax,
		GrandTotal:      draft.GrandTotal,
		PaymentSchedule: sched,
		PaymentStage:    stage,
		PaymentStatus:   StatusPending,
		Terms:           terms,
		ThankYouNote:    thanks,
		Notes:           draft.Notes,
		Warnings:        append([]string(nil), draft.Warnings...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
