package identity

import (
	"testing"
	"time"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
)

func testPool() []merchant.Customer {
	return []merchant.Customer{
		{ID: "c1", Name: "Ahmad Rahman", Email: "ahmad@x.com", Phone: "081234567890"},
		{ID: "c2", Name: "Siti Aminah", Email: "siti@y.com", Phone: "081111111111"},
	}
}

func testSnapshot() merchant.CatalogSnapshot {
	return merchant.CatalogSnapshot{
		Products: []merchant.Product{
			{ID: "p1", Name: "iPhone 15 Pro", UnitPrice: 16500000, Active: true},
			{ID: "p2", Name: "AirPods Pro", UnitPrice: 4100000, Active: true},
			{ID: "p3", Name: "Retired Widget", UnitPrice: 1000, Active: false},
		},
		TakenAt: time.Now(),
	}
}

func TestMatchCustomerExactEmailWins(t *testing.T) {
	m := NewMatcher()
	res := m.MatchCustomer(intake.PartialCustomer{Name: "Completely Different", Email: "AHMAD@X.COM"}, testPool())
	if res.IsNew || res.Customer == nil || res.Customer.ID != "c1" {
		t.Fatalf("expected email match to c1, got %+v", res)
	}
	if res.Confidence != 1.0 || res.Action != ActionExisting {
		t.Fatalf("expected confidence 1.0 existing, got %v %q", res.Confidence, res.Action)
	}
}

func TestMatchCustomerNormalizedPhone(t *testing.T) {
	m := NewMatcher()
	res := m.MatchCustomer(intake.PartialCustomer{Name: "A R", Phone: "+62 812-3456-7890"}, testPool())
	if res.IsNew || res.Customer == nil || res.Customer.ID != "c1" {
		t.Fatalf("expected phone match to c1, got %+v", res)
	}
}

func TestMatchCustomerFuzzyName(t *testing.T) {
	m := NewMatcher()
	res := m.MatchCustomer(intake.PartialCustomer{Name: "Ahmad Rahmen"}, testPool())
	if res.IsNew || res.Customer == nil || res.Customer.ID != "c1" {
		t.Fatalf("expected fuzzy name match to c1, got %+v", res)
	}
}

func TestMatchCustomerShortNameNeverFuzzyMatches(t *testing.T) {
	m := NewMatcher()
	pool := []merchant.Customer{{ID: "c9", Name: "Ana"}}
	res := m.MatchCustomer(intake.PartialCustomer{Name: "Ani"}, pool)
	if !res.IsNew {
		t.Fatalf("short names must not fuzzy match, got %+v", res)
	}
}

func TestMatchCustomerNewWithRichDataAutoAdds(t *testing.T) {
	m := NewMatcher()
	res := m.MatchCustomer(intake.PartialCustomer{
		Name:    "Budi Santoso",
		Email:   "budi@mail.com",
		Phone:   "081298765432",
		Address: "Jl. Sudirman No. 10, Jakarta Selatan",
	}, testPool())
	if !res.IsNew {
		t.Fatalf("expected new customer, got %+v", res)
	}
	if res.Action != ActionAutoAdd {
		t.Fatalf("rich customer data should auto_add, got %q (confidence %v)", res.Action, res.Confidence)
	}
}

func TestMatchCustomerSparseDataNeedsReview(t *testing.T) {
	m := NewMatcher()
	res := m.MatchCustomer(intake.PartialCustomer{Name: "Budi Baru"}, testPool())
	if !res.IsNew {
		t.Fatalf("expected new customer")
	}
	if res.Action == ActionAutoAdd {
		t.Fatalf("sparse customer data must not auto_add (confidence %v)", res.Confidence)
	}
}

func TestMatchProductExisting(t *testing.T) {
	m := NewMatcher()
	res := m.MatchProduct(intake.PartialLineItem{ProductName: "iphone 15 pro", UnitPrice: 16500000}, testSnapshot())
	if res.IsNew || res.Product == nil || res.Product.ID != "p1" {
		t.Fatalf("expected catalog match to p1, got %+v", res)
	}
}

func TestMatchProductInactiveExcluded(t *testing.T) {
	m := NewMatcher()
	res := m.MatchProduct(intake.PartialLineItem{ProductName: "Retired Widget"}, testSnapshot())
	if !res.IsNew {
		t.Fatalf("inactive products must not match, got %+v", res)
	}
}

func TestNewProductNeverAutoAdded(t *testing.T) {
	m := NewMatcher()
	items := []intake.PartialLineItem{
		{ProductName: "MacBook Pro M4 Max", UnitPrice: 45000000},
		{ProductName: "x"},
		{ProductName: "Samsung Galaxy S25 Ultra phone", UnitPrice: 22000000},
	}
	for _, it := range items {
		res := m.MatchProduct(it, testSnapshot())
		if !res.IsNew {
			continue
		}
		if res.Action == ActionAutoAdd {
			t.Fatalf("product %q must never be auto_add (confidence %v)", it.ProductName, res.Confidence)
		}
	}
}

func TestPolicyProductHardOverride(t *testing.T) {
	for _, conf := range []float64{0, 0.5, 0.9, 1.0} {
		if got := actionFor(KindProduct, conf); got != ActionManualReview {
			t.Fatalf("actionFor(product, %v) = %q, want manual_review", conf, got)
		}
	}
}

func TestPolicyCustomerThresholds(t *testing.T) {
	cases := []struct {
		conf float64
		want Action
	}{
		{0.95, ActionAutoAdd},
		{0.8, ActionAutoAdd},
		{0.6, ActionSmartConfirm},
		{0.2, ActionManualReview},
	}
	for _, c := range cases {
		if got := actionFor(KindCustomer, c.conf); got != c.want {
			t.Fatalf("actionFor(customer, %v) = %q, want %q", c.conf, got, c.want)
		}
	}
}
