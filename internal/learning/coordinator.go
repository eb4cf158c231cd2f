// Package learning applies identity-match outcomes after an invoice is
// confirmed: auto-add actions are persisted immediately, everything else goes
// to a confirmation queue for the merchant. Failures are isolated per entity.
package learning

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/adiwendra/fakturo/internal/identity"
	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
)

// Saver is the slice of the persistence collaborator the coordinator writes
// through.
type Saver interface {
	SaveCustomer(ctx context.Context, c merchant.Customer) (merchant.Customer, error)
	CreateProduct(ctx context.Context, p merchant.Product) (merchant.Product, error)
}

// Analysis is the per-invoice batch of match results.
type Analysis struct {
	Customer *identity.MatchResult
	Products []identity.MatchResult
}

type EntityError struct {
	Kind identity.EntityKind `json:"kind"`
	Name string              `json:"name"`
	Err  string              `json:"error"`
}

// Outcome reports what happened to every candidate: nothing is silently
// dropped.
type Outcome struct {
	AddedCustomers []merchant.Customer    `json:"added_customers,omitempty"`
	Queue          []identity.MatchResult `json:"queue,omitempty"`
	Errors         []EntityError          `json:"errors,omitempty"`
}

type Coordinator struct {
	saver Saver
}

func NewCoordinator(saver Saver) *Coordinator {
	return &Coordinator{saver: saver}
}

// Process walks the analysis and applies each action. One failed save does
// not abort the batch; the failure is recorded and processing continues.
func (c *Coordinator) Process(ctx context.Context, analysis Analysis) Outcome {
	var out Outcome

	if analysis.Customer != nil && analysis.Customer.IsNew {
		c.processCustomer(ctx, *analysis.Customer, &out)
	}
	for _, res := range analysis.Products {
		if !res.IsNew {
			continue
		}
		// Products are pinned to review by policy; nothing is persisted here
		// even if a caller hands in a mislabeled action.
		if res.Action == identity.ActionAutoAdd {
			log.Printf("learning product_auto_add_refused name=%q", productName(res))
			res.Action = identity.ActionManualReview
		}
		out.Queue = append(out.Queue, res)
	}
	log.Printf("learning batch_done added_customers=%d queued=%d errors=%d", len(out.AddedCustomers), len(out.Queue), len(out.Errors))
	return out
}

func (c *Coordinator) processCustomer(ctx context.Context, res identity.MatchResult, out *Outcome) {
	if res.Action != identity.ActionAutoAdd {
		out.Queue = append(out.Queue, res)
		return
	}
	extracted, ok := res.Extracted.(intake.PartialCustomer)
	if !ok || strings.TrimSpace(extracted.Name) == "" {
		out.Errors = append(out.Errors, EntityError{Kind: identity.KindCustomer, Err: "auto_add candidate has no usable customer data"})
		return
	}
	saved, err := c.saver.SaveCustomer(ctx, merchant.Customer{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(extracted.Name),
		Email:   strings.TrimSpace(extracted.Email),
		Phone:   strings.TrimSpace(extracted.Phone),
		Address: strings.TrimSpace(extracted.Address),
	})
	if err != nil {
		log.Printf("learning customer_save_failed name=%q err=%q", extracted.Name, err.Error())
		out.Errors = append(out.Errors, EntityError{Kind: identity.KindCustomer, Name: extracted.Name, Err: err.Error()})
		// The candidate is not lost: it falls back to the review queue.
		res.Action = identity.ActionManualReview
		out.Queue = append(out.Queue, res)
		return
	}
	log.Printf("learning customer_auto_added id=%s name=%q", saved.ID, saved.Name)
	out.AddedCustomers = append(out.AddedCustomers, saved)
}

func productName(res identity.MatchResult) string {
	if it, ok := res.Extracted.(intake.PartialLineItem); ok {
		return it.ProductName
	}
	return fmt.Sprintf("%v", res.Extracted)
}
