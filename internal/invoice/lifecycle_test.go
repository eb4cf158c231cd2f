package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
)

// memStore mimics the persistence collaborator with the same conditional
// update semantics as the SQLite store.
type memStore struct {
	mu       sync.Mutex
	invoices map[string]*Invoice
	saves    int
}

func newMemStore() *memStore {
	return &memStore{invoices: map[string]*Invoice{}}
}

func clone(inv *Invoice) *Invoice {
	blob, _ := json.Marshal(inv)
	var out Invoice
	_ = json.Unmarshal(blob, &out)
	return &out
}

func (s *memStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, NewNotFoundError(id)
	}
	return clone(inv), nil
}

func (s *memStore) SaveInvoice(ctx context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.invoices[inv.ID] = clone(inv)
	return nil
}

func (s *memStore) UpdateStage(ctx context.Context, id string, expect PaymentStage, mutate func(*Invoice) error) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.invoices[id]
	if !ok {
		return nil, NewNotFoundError(id)
	}
	if current.PaymentStage != expect {
		return nil, NewStageConflictError(current.PaymentStage, expect)
	}
	next := clone(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.invoices[id] = next
	return clone(next), nil
}

type fakeOrders struct {
	err    error
	calls  int
	lastID string
}

func (f *fakeOrders) CreateOrderFromInvoice(ctx context.Context, invoiceID string) (string, error) {
	f.calls++
	f.lastID = invoiceID
	if f.err != nil {
		return "", f.err
	}
	return "ord-" + invoiceID, nil
}

func scheduledDraft() *intake.ExtractedOrder {
	draft := &intake.ExtractedOrder{
		Customer: intake.PartialCustomer{Name: "Ahmad Rahman", Email: "ahmad@x.com"},
		Items: []intake.PartialLineItem{
			{ProductName: "iPhone 15 Pro", Quantity: 2, UnitPrice: 16500000, LineTotal: 33000000},
			{ProductName: "AirPods Pro", Quantity: 1, UnitPrice: 4100000, LineTotal: 4100000},
		},
		Subtotal:   37100000,
		GrandTotal: 37100000,
		DueDate:    "2026-09-07",
		PaymentSchedule: &intake.PaymentSchedule{
			ScheduleType: intake.ScheduleDownPayment,
			DownPayment: intake.Installment{
				Percentage: 30,
				DueDate:    intake.DueImmediately,
				Status:     intake.InstallmentPending,
			},
			RemainingBalance: intake.Installment{
				DueDate: intake.DueOnInvoiceDueDate,
				Status:  intake.InstallmentPending,
			},
		},
	}
	draft.PaymentSchedule.Recompute(draft.GrandTotal)
	return draft
}

func profile() merchant.BusinessProfile {
	return merchant.BusinessProfile{Name: "Toko Maju", Currency: "IDR", PaymentTerms: "Transfer BCA"}
}

func TestPreviewPerformsNoWrites(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)
	inv := l.Preview(scheduledDraft(), profile())
	if !inv.Preview {
		t.Fatalf("preview flag not set")
	}
	if inv.ID == "" || inv.ID[:4] != "PRV-" {
		t.Fatalf("preview id = %q, want PRV- prefix", inv.ID)
	}
	if store.saves != 0 {
		t.Fatalf("preview must not persist")
	}
	if inv.CustomerToken != "" {
		t.Fatalf("preview must not mint tokens")
	}
}

func TestConfirmValidatesInput(t *testing.T) {
	l := NewLifecycle(newMemStore(), nil)

	noCustomer := scheduledDraft()
	noCustomer.Customer.Name = ""
	if _, err := l.Confirm(context.Background(), noCustomer, profile()); ErrorCode(err) != CodeValidation {
		t.Fatalf("expected validation error for missing customer, got %v", err)
	}

	noItems := scheduledDraft()
	noItems.Items = nil
	if _, err := l.Confirm(context.Background(), noItems, profile()); ErrorCode(err) != CodeValidation {
		t.Fatalf("expected validation error for missing items, got %v", err)
	}
}

func TestConfirmSetsStageFromSchedule(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)

	scheduled, err := l.Confirm(context.Background(), scheduledDraft(), profile())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if scheduled.PaymentStage != StageDownPayment {
		t.Fatalf("stage = %q, want down_payment", scheduled.PaymentStage)
	}
	if scheduled.CustomerToken == "" {
		t.Fatalf("confirm must mint the customer token")
	}
	if scheduled.OriginalDueDate != "2026-09-07" {
		t.Fatalf("original due date = %q", scheduled.OriginalDueDate)
	}

	plain := scheduledDraft()
	plain.PaymentSchedule = nil
	full, err := l.Confirm(context.Background(), plain, profile())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if full.PaymentStage != StageFullPayment {
		t.Fatalf("stage = %q, want full_payment", full.PaymentStage)
	}
}

func TestConfirmRecomputesScheduleSplit(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)

	// A stale or hand-edited draft file can carry amounts that no longer
	// match the grand total.
	draft := scheduledDraft()
	draft.PaymentSchedule.DownPayment.Amount = 999
	draft.PaymentSchedule.RemainingBalance.Amount = 1

	inv, err := l.Confirm(context.Background(), draft, profile())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	sched := inv.PaymentSchedule
	if sched.DownPayment.Amount != 11130000 {
		t.Fatalf("down payment = %v, want 11130000 (30%% of grand total)", sched.DownPayment.Amount)
	}
	if got := sched.DownPayment.Amount + sched.RemainingBalance.Amount; got != inv.GrandTotal {
		t.Fatalf("installments sum to %v, want grand total %v", got, inv.GrandTotal)
	}
	persisted, _ := store.GetInvoice(context.Background(), inv.ID)
	if persisted.PaymentSchedule.DownPayment.Amount != 11130000 {
		t.Fatalf("persisted split not recomputed: %+v", persisted.PaymentSchedule)
	}

	// Absolute down payments keep the stated amount; only the remainder is
	// re-derived.
	absolute := scheduledDraft()
	absolute.PaymentSchedule.DownPayment.Percentage = 0
	absolute.PaymentSchedule.DownPayment.Amount = 500000
	absolute.PaymentSchedule.RemainingBalance.Amount = 42

	inv2, err := l.Confirm(context.Background(), absolute, profile())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if inv2.PaymentSchedule.RemainingBalance.Amount != inv2.GrandTotal-500000 {
		t.Fatalf("remaining balance = %v, want %v", inv2.PaymentSchedule.RemainingBalance.Amount, inv2.GrandTotal-500000)
	}
}

func TestDownPaymentConfirmation(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)
	inv, err := l.Confirm(context.Background(), scheduledDraft(), profile())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	updated, err := l.ConfirmDownPayment(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("ConfirmDownPayment: %v", err)
	}
	if updated.PaymentStage != StageFinalPayment {
		t.Fatalf("stage = %q, want final_payment", updated.PaymentStage)
	}
	wantFinal := 37100000 - updated.PaymentSchedule.DownPayment.Amount
	if updated.FinalPaymentAmount != wantFinal {
		t.Fatalf("final amount = %v, want %v", updated.FinalPaymentAmount, wantFinal)
	}
	if updated.PaymentSchedule.DownPayment.Status != intake.InstallmentPaid {
		t.Fatalf("down payment not marked paid")
	}
	if updated.FinalPaymentToken == "" || updated.FinalPaymentToken == updated.CustomerToken {
		t.Fatalf("final-payment token must be minted and distinct")
	}
	if updated.OriginalDueDate != "2026-09-07" {
		t.Fatalf("original due date lost: %q", updated.OriginalDueDate)
	}
	if updated.PaymentStatus != StatusPartial {
		t.Fatalf("status = %q, want partial", updated.PaymentStatus)
	}
}

func TestDoubleDownPaymentRejected(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)
	inv, _ := l.Confirm(context.Background(), scheduledDraft(), profile())

	first, err := l.ConfirmDownPayment(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("first ConfirmDownPayment: %v", err)
	}
	_, err = l.ConfirmDownPayment(context.Background(), inv.ID)
	if !IsStageConflict(err) {
		t.Fatalf("second confirmation must be a stage conflict, got %v", err)
	}
	after, _ := store.GetInvoice(context.Background(), inv.ID)
	if after.FinalPaymentToken != first.FinalPaymentToken {
		t.Fatalf("second confirmation must not mint a new token")
	}
}

func TestDownPaymentWithoutScheduleRejected(t *testing.T) {
	store := newMemStore()
	l := NewLifecycle(store, nil)
	// Force an inconsistent record: down_payment stage with no schedule.
	draft := scheduledDraft()
	inv, _ := l.Confirm(context.Background(), draft, profile())
	store.mu.Lock()
	store.invoices[inv.ID].PaymentSchedule = nil
	store.mu.Unlock()

	if _, err := l.ConfirmDownPayment(context.Background(), inv.ID); ErrorCode(err) != CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFinalPaymentOnWrongStageRejectedWithoutMutation(t *testing.T) {
	store := newMemStore()
	orders := &fakeOrders{}
	l := NewLifecycle(store, orders)
	inv, _ := l.Confirm(context.Background(), scheduledDraft(), profile())

	_, err := l.ConfirmFinalPayment(context.Background(), inv.ID)
	if !IsStageConflict(err) {
		t.Fatalf("expected stage conflict, got %v", err)
	}
	after, _ := store.GetInvoice(context.Background(), inv.ID)
	if after.PaymentStage != StageDownPayment || after.PaymentStatus != StatusPending {
		t.Fatalf("rejected transition mutated the invoice: %+v", after)
	}
	if orders.calls != 0 {
		t.Fatalf("order creation must not run on a rejected transition")
	}
}

func TestFinalPaymentCompletes(t *testing.T) {
	store := newMemStore()
	orders := &fakeOrders{}
	l := NewLifecycle(store, orders)
	inv, _ := l.Confirm(context.Background(), scheduledDraft(), profile())
	if _, err := l.ConfirmDownPayment(context.Background(), inv.ID); err != nil {
		t.Fatalf("ConfirmDownPayment: %v", err)
	}

	done, err := l.ConfirmFinalPayment(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("ConfirmFinalPayment: %v", err)
	}
	if done.PaymentStage != StageCompleted || done.PaymentStatus != StatusPaid {
		t.Fatalf("expected completed/paid, got %q/%q", done.PaymentStage, done.PaymentStatus)
	}
	if done.PaymentSchedule.RemainingBalance.Status != intake.InstallmentPaid {
		t.Fatalf("remaining balance not marked paid")
	}
	if orders.calls != 1 || orders.lastID != inv.ID {
		t.Fatalf("expected one order creation for %s, got %+v", inv.ID, orders)
	}
}

func TestOrderCreationFailureIsNonFatal(t *testing.T) {
	store := newMemStore()
	orders := &fakeOrders{err: errors.New("order service unavailable")}
	l := NewLifecycle(store, orders)
	inv, _ := l.Confirm(context.Background(), scheduledDraft(), profile())
	if _, err := l.ConfirmDownPayment(context.Background(), inv.ID); err != nil {
		t.Fatalf("ConfirmDownPayment: %v", err)
	}

	done, err := l.ConfirmFinalPayment(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("payment confirmation must not fail on order-creation failure: %v", err)
	}
	if done.PaymentStage != StageCompleted {
		t.Fatalf("payment stage must still complete, got %q", done.PaymentStage)
	}
	after, _ := store.GetInvoice(context.Background(), inv.ID)
	if after.PaymentStatus != StatusPaid {
		t.Fatalf("persisted status must be paid, got %q", after.PaymentStatus)
	}
}
