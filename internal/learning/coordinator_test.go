package learning

import (
	"context"
	"errors"
	"testing"

	"github.com/adiwendra/fakturo/internal/identity"
	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
)

type fakeSaver struct {
	customerErr error
	saved       []merchant.Customer
	products    []merchant.Product
}

func (f *fakeSaver) SaveCustomer(ctx context.Context, c merchant.Customer) (merchant.Customer, error) {
	if f.customerErr != nil {
		return merchant.Customer{}, f.customerErr
	}
	f.saved = append(f.saved, c)
	return c, nil
}

func (f *fakeSaver) CreateProduct(ctx context.Context, p merchant.Product) (merchant.Product, error) {
	f.products = append(f.products, p)
	return p, nil
}

func newCustomerResult(action identity.Action) *identity.MatchResult {
	return &identity.MatchResult{
		Kind:       identity.KindCustomer,
		IsNew:      true,
		Confidence: 0.9,
		Action:     action,
		Extracted:  intake.PartialCustomer{Name: "Budi Santoso", Email: "budi@mail.com"},
	}
}

func newProductResult(name string) identity.MatchResult {
	return identity.MatchResult{
		Kind:       identity.KindProduct,
		IsNew:      true,
		Confidence: 0.95,
		Action:     identity.ActionManualReview,
		Extracted:  intake.PartialLineItem{ProductName: name, UnitPrice: 100000},
	}
}

func TestProcessAutoAddsCustomer(t *testing.T) {
	saver := &fakeSaver{}
	c := NewCoordinator(saver)
	out := c.Process(context.Background(), Analysis{Customer: newCustomerResult(identity.ActionAutoAdd)})
	if len(saver.saved) != 1 || saver.saved[0].Name != "Budi Santoso" {
		t.Fatalf("expected one saved customer, got %+v", saver.saved)
	}
	if len(out.AddedCustomers) != 1 || len(out.Errors) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestProcessQueuesReviewCandidates(t *testing.T) {
	saver := &fakeSaver{}
	c := NewCoordinator(saver)
	out := c.Process(context.Background(), Analysis{
		Customer: newCustomerResult(identity.ActionSmartConfirm),
		Products: []identity.MatchResult{newProductResult("MacBook Pro M4"), newProductResult("Magic Mouse")},
	})
	if len(out.Queue) != 3 {
		t.Fatalf("expected 3 queued candidates, got %d", len(out.Queue))
	}
	if len(saver.saved) != 0 || len(saver.products) != 0 {
		t.Fatalf("review candidates must not be persisted")
	}
}

func TestProcessNeverPersistsProducts(t *testing.T) {
	saver := &fakeSaver{}
	c := NewCoordinator(saver)
	mislabeled := newProductResult("Rogue Product")
	mislabeled.Action = identity.ActionAutoAdd

	out := c.Process(context.Background(), Analysis{Products: []identity.MatchResult{mislabeled}})
	if len(saver.products) != 0 {
		t.Fatalf("products must never be auto-created, got %+v", saver.products)
	}
	if len(out.Queue) != 1 || out.Queue[0].Action != identity.ActionManualReview {
		t.Fatalf("mislabeled product should be queued for review, got %+v", out.Queue)
	}
}

func TestProcessIsolatesSaveFailures(t *testing.T) {
	saver := &fakeSaver{customerErr: errors.New("unique constraint violated")}
	c := NewCoordinator(saver)
	out := c.Process(context.Background(), Analysis{
		Customer: newCustomerResult(identity.ActionAutoAdd),
		Products: []identity.MatchResult{newProductResult("MacBook Pro M4")},
	})
	if len(out.Errors) != 1 {
		t.Fatalf("expected one isolated error, got %+v", out.Errors)
	}
	// Failed auto_add is not dropped and the product batch still processed.
	if len(out.Queue) != 2 {
		t.Fatalf("expected failed customer plus product in queue, got %d", len(out.Queue))
	}
}
