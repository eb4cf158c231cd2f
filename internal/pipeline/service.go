// Package pipeline wires the interpretation, identity and lifecycle
// components behind one request-scoped facade used by the command-line
// entrypoints.
package pipeline

import (
	"context"
	"log"

	"github.com/adiwendra/fakturo/internal/identity"
	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/invoice"
	"github.com/adiwendra/fakturo/internal/learning"
	"github.com/adiwendra/fakturo/internal/merchant"
)

// Backend is the full persistence surface the pipeline needs; *store.Store
// satisfies it.
type Backend interface {
	invoice.Store
	invoice.OrderCreator
	learning.Saver
	merchant.CatalogSource
	ListCustomers(ctx context.Context, limit, offset int) ([]merchant.Customer, error)
}

type Service struct {
	backend   Backend
	catalog   *merchant.SnapshotCache
	profile   merchant.BusinessProfile
	interp    *intake.Interpreter
	matcher   *identity.Matcher
	learner   *learning.Coordinator
	lifecycle *invoice.Lifecycle
}

func NewService(backend Backend, caller intake.LLMCaller, profile merchant.BusinessProfile) *Service {
	return &Service{
		backend:   backend,
		catalog:   merchant.NewSnapshotCache(backend, merchant.DefaultSnapshotTTL),
		profile:   profile,
		interp:    intake.NewInterpreter(caller),
		matcher:   identity.NewMatcher(),
		learner:   learning.NewCoordinator(backend),
		lifecycle: invoice.NewLifecycle(backend, backend),
	}
}

// Preview interprets a message against the current catalog snapshot and
// returns the ephemeral invoice shape. Nothing is persisted.
func (s *Service) Preview(ctx context.Context, req intake.InterpretRequest) (*invoice.Invoice, error) {
	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	draft, err := s.interp.Interpret(ctx, req, snapshot, s.profile)
	if err != nil {
		return nil, err
	}
	log.Printf("pipeline preview %s", intake.DraftSummary(draft))
	return s.lifecycle.Preview(draft, s.profile), nil
}

// ConfirmResult pairs the persisted invoice with the auto-learning outcome
// for the confirmed customer and items.
type ConfirmResult struct {
	Invoice  *invoice.Invoice `json:"invoice"`
	Learning learning.Outcome `json:"learning"`
}

// Confirm persists the draft and runs auto-learning over the confirmed
// customer and items. Learning failures are reported in the outcome, never
// as a confirm failure.
func (s *Service) Confirm(ctx context.Context, draft *intake.ExtractedOrder) (*ConfirmResult, error) {
	inv, err := s.lifecycle.Confirm(ctx, draft, s.profile)
	if err != nil {
		return nil, err
	}
	outcome := s.learner.Process(ctx, s.analyze(ctx, draft))
	return &ConfirmResult{Invoice: inv, Learning: outcome}, nil
}

func (s *Service) ConfirmDownPayment(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	return s.lifecycle.ConfirmDownPayment(ctx, invoiceID)
}

func (s *Service) ConfirmFinalPayment(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	return s.lifecycle.ConfirmFinalPayment(ctx, invoiceID)
}

func (s *Service) analyze(ctx context.Context, draft *intake.ExtractedOrder) learning.Analysis {
	var analysis learning.Analysis

	pool, err := s.backend.ListCustomers(ctx, 0, 0)
	if err != nil {
		// A pool fetch failure degrades to empty-pool matching; the worst
		// case is a known customer queued for review instead of matched.
		log.Printf("pipeline customer_pool_fetch_failed err=%q", err.Error())
	}
	res := s.matcher.MatchCustomer(draft.Customer, pool)
	analysis.Customer = &res

	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		log.Printf("pipeline snapshot_fetch_failed err=%q", err.Error())
	}
	for _, item := range draft.Items {
		analysis.Products = append(analysis.Products, s.matcher.MatchProduct(item, snapshot))
	}
	return analysis
}
