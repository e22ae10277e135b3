package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"codeart/internal/core/apperror"
	"codeart/internal/core/datacontext"
	"codeart/internal/core/id"
	"codeart/internal/core/numerator"
	"codeart/internal/domain"
)

// NumberPrefix starts every order number.
const NumberPrefix = "ORD"

// NumberStrategy is strict: a number taken while the storage transaction
// is open is returned by its rollback.
var NumberStrategy = numerator.StrategyStrict

// Service provides business logic for orders.
// Uses composition with domain.AggregateService for the common write/read path.
type Service struct {
	*domain.AggregateService[*Order]
	repo      Repository
	numerator numerator.Generator
	now       func() time.Time
}

// NewService creates a new order service. A nil numerator numbers
// orders from process memory.
func NewService(repo Repository, numbers numerator.Generator) *Service {
	if numbers == nil {
		numbers = numerator.New(numerator.NewMemorySequence())
	}
	base := domain.NewAggregateService(domain.AggregateServiceConfig[*Order]{
		Repo:       repo,
		EntityName: EntityName,
	})

	svc := &Service{
		AggregateService: base,
		repo:             repo,
		numerator:        numbers,
		now:              time.Now,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeDelete(svc.validateBeforeDelete)

	return svc
}

// prepareForCreate makes sure new orders start as drafts and numbers them.
func (s *Service) prepareForCreate(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusDraft
	}
	if o.Status != StatusDraft {
		return apperror.NewValidation("new orders must be drafts").
			WithDetail("status", o.Status)
	}

	if o.Number == "" {
		dc, err := datacontext.FromContext(ctx)
		if err != nil {
			return err
		}
		sctx, err := dc.OpenLock(ctx, datacontext.LevelNone)
		if err != nil {
			return err
		}
		cfg := numerator.DefaultConfig(NumberPrefix)
		number, err := s.numerator.GetNextNumber(sctx, cfg, &numerator.Options{Strategy: NumberStrategy}, s.now())
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		o.Number = number
	}
	return nil
}

// validateBeforeDelete prevents deletion of confirmed orders.
func (s *Service) validateBeforeDelete(ctx context.Context, o *Order) error {
	if o.Status == StatusConfirmed {
		return apperror.NewValidation("confirmed orders must be cancelled before deletion").
			WithDetail("id", o.ID.String())
	}
	return nil
}

// CreateBatch creates all orders in one transaction: the writes are
// queued and flushed together at commit, so either all or none persist.
func (s *Service) CreateBatch(ctx context.Context, orders []*Order) error {
	return datacontext.Transaction(ctx, func(ctx context.Context) error {
		for _, o := range orders {
			if err := s.Create(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
}

// Confirm reads the order exclusively and confirms it in one transaction.
func (s *Service) Confirm(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.change(ctx, orderID, (*Order).Confirm)
}

// Cancel reads the order exclusively and cancels it in one transaction.
func (s *Service) Cancel(ctx context.Context, orderID id.ID) (*Order, error) {
	return s.change(ctx, orderID, (*Order).Cancel)
}

// ChangeTotal reads the order exclusively and replaces its total.
func (s *Service) ChangeTotal(ctx context.Context, orderID id.ID, total decimal.Decimal) (*Order, error) {
	return s.change(ctx, orderID, func(o *Order) error { return o.ChangeTotal(total) })
}

// Edit applies an arbitrary change to a draft order whose stored version
// is still version.
func (s *Service) Edit(ctx context.Context, orderID id.ID, version int, apply func(*Order)) (*Order, error) {
	return s.change(ctx, orderID, func(o *Order) error {
		if o.Version != version {
			return apperror.NewConcurrentModification(EntityName, orderID.String())
		}
		if o.Status != StatusDraft {
			return apperror.NewValidation("only draft orders can be changed").
				WithDetail("status", o.Status)
		}
		apply(o)
		o.MarkDirty()
		return nil
	})
}

func (s *Service) change(ctx context.Context, orderID id.ID, apply func(*Order) error) (*Order, error) {
	var changed *Order
	err := datacontext.Transaction(ctx, func(ctx context.Context) error {
		o, err := s.Get(ctx, orderID, datacontext.LevelSingle)
		if err != nil {
			return err
		}
		if err := apply(o); err != nil {
			return err
		}
		changed = o
		return s.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}
