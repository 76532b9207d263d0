// Package penalty drives the late-fee ledger: pure previews, idempotent
// recalculation, lifecycle transitions and the hand-off that turns a
// penalty row into a billable charge.
package penalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/penalty"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service coordinates penalty computation against the reconciliation view
// and the penalty ledger.
type Service struct {
	penaltyRepo penalty.Repository
	reports     billing.ReportRepository
	accrualRepo billing.AccrualRepository
	defaultRate decimal.Decimal
	logger      *zap.Logger
}

// NewService creates a new penalty Service
func NewService(
	penaltyRepo penalty.Repository,
	reports billing.ReportRepository,
	accrualRepo billing.AccrualRepository,
	defaultRate decimal.Decimal,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		penaltyRepo: penaltyRepo,
		reports:     reports,
		accrualRepo: accrualRepo,
		defaultRate: defaultRate,
		logger:      logger,
	}
}

// ComputeRequest parameterizes a penalty computation
type ComputeRequest struct {
	Period     *valueobject.Period // restrict to one billing period
	AsOf       time.Time           // reference date; zero means now
	AnnualRate *decimal.Decimal    // override; nil uses the policy default
	MinAmount  *decimal.Decimal    // drop computed rows below this
}

func (r *ComputeRequest) asOf() time.Time {
	if r.AsOf.IsZero() {
		return time.Now().UTC()
	}
	return r.AsOf.UTC()
}

func (s *Service) rate(r *ComputeRequest) decimal.Decimal {
	if r.AnnualRate != nil {
		return *r.AnnualRate
	}
	return s.defaultRate
}

// PreviewResult is a computed penalty run with no side effects
type PreviewResult struct {
	AsOf       time.Time            `json:"as_of"`
	AnnualRate decimal.Decimal      `json:"annual_rate"`
	Rows       []penalty.PreviewRow `json:"rows"`
	Total      decimal.Decimal      `json:"total"`
}

// Preview computes penalties from current outstanding remainders without
// writing anything. Safe to call repeatedly with different parameters.
func (s *Service) Preview(ctx context.Context, req ComputeRequest) (*PreviewResult, error) {
	asOf := req.asOf()
	rate := s.rate(&req)
	rows, total, err := s.compute(ctx, billing.OutstandingFilter{Period: req.Period}, asOf, rate, req.MinAmount)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{AsOf: asOf, AnnualRate: rate, Rows: rows, Total: total}, nil
}

func (s *Service) compute(ctx context.Context, filter billing.OutstandingFilter, asOf time.Time, rate decimal.Decimal, minAmount *decimal.Decimal) ([]penalty.PreviewRow, decimal.Decimal, error) {
	filter.CreatedTo = &asOf
	outstanding, err := s.reports.OutstandingAccruals(ctx, filter)
	if err != nil {
		return nil, decimal.Zero, err
	}
	rows, total := penalty.BuildPreview(outstanding, asOf, rate, minAmount)
	return rows, total, nil
}

// RecalculateRequest parameterizes a persisted recalculation run
type RecalculateRequest struct {
	ComputeRequest
	PropertyIDs   []uuid.UUID // restrict the scanned base to these properties
	Limit         int         // cap on scanned base rows for staged rollout; 0 means no cap
	IncludeVoided bool        // recompute voided rows back to active instead of skipping them
	ActorID       uuid.UUID
}

// RecalculateSample pairs one computed row with the ledger amount it
// found, so a run's audit display can show before and after.
type RecalculateSample struct {
	penalty.PreviewRow
	PriorAmount decimal.Decimal `json:"prior_amount"`
}

// RecalculateResult reports what one recalculation run did. Re-running
// with the same inputs yields zero created and updated: every row lands
// in unchanged.
type RecalculateResult struct {
	AsOf          time.Time           `json:"as_of"`
	AnnualRate    decimal.Decimal     `json:"annual_rate"`
	Created       int                 `json:"created"`
	Updated       int                 `json:"updated"`
	Unchanged     int                 `json:"unchanged"`
	SkippedFrozen int                 `json:"skipped_frozen"`
	SkippedVoided int                 `json:"skipped_voided"`
	SkippedZero   int                 `json:"skipped_zero_debt"`
	Total         decimal.Decimal     `json:"total"`
	Samples       []RecalculateSample `json:"samples,omitempty"`
}

const recalculateSampleLimit = 20

// Recalculate computes penalties and writes them to the ledger, one row
// per (property, period). Frozen rows are never touched; voided rows are
// skipped unless the request includes them; a row recomputed from the
// same basis is left alone.
func (s *Service) Recalculate(ctx context.Context, req RecalculateRequest) (*RecalculateResult, error) {
	asOf := req.asOf()
	rate := s.rate(&req.ComputeRequest)
	rows, total, err := s.compute(ctx, billing.OutstandingFilter{
		Period:      req.Period,
		PropertyIDs: req.PropertyIDs,
		Limit:       req.Limit,
	}, asOf, rate, req.MinAmount)
	if err != nil {
		return nil, err
	}

	result := &RecalculateResult{AsOf: asOf, AnnualRate: rate, Total: total}
	covered := make(map[string]bool, len(rows))

	for i := range rows {
		row := &rows[i]
		covered[penaltyKey(row.PropertyID, row.Period)] = true
		if err := s.applyRow(ctx, row, asOf, rate, &req, result); err != nil {
			return nil, err
		}
	}

	// Active rows whose base debt has since been paid off are left as they
	// are but reported, so a shrinking run is visible in the counters.
	if req.Period != nil {
		existing, err := s.penaltyRepo.ListByPeriod(ctx, *req.Period, false)
		if err != nil {
			return nil, err
		}
		for i := range existing {
			if existing[i].Status == penalty.StatusActive && !covered[penaltyKey(existing[i].PropertyID, existing[i].Period)] {
				result.SkippedZero++
			}
		}
	}

	s.logger.Info("Penalty recalculation finished",
		zap.Time("as_of", asOf),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped_frozen", result.SkippedFrozen),
		zap.Int("skipped_voided", result.SkippedVoided))
	return result, nil
}

func penaltyKey(propertyID uuid.UUID, period valueobject.Period) string {
	return fmt.Sprintf("%s|%s", propertyID, period)
}

// applyRow upserts one computed row into the ledger
func (s *Service) applyRow(ctx context.Context, row *penalty.PreviewRow, asOf time.Time, rate decimal.Decimal, req *RecalculateRequest, result *RecalculateResult) error {
	meta := penalty.MetaFor(*row, asOf, rate)

	existing, err := s.penaltyRepo.FindByPropertyAndPeriod(ctx, row.PropertyID, row.Period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			created, err := penalty.NewPenaltyAccrual(row.PropertyID, row.Period, row.Amount, meta)
			if err != nil {
				return err
			}
			if err := s.penaltyRepo.Save(ctx, created); err != nil {
				return err
			}
			result.Created++
			result.sample(row, decimal.Zero)
			return nil
		}
		return err
	}

	switch existing.Status {
	case penalty.StatusFrozen:
		result.SkippedFrozen++
		return nil
	case penalty.StatusVoided:
		if !req.IncludeVoided {
			result.SkippedVoided++
			return nil
		}
		prior := existing.Amount
		if err := existing.Unvoid(req.ActorID); err != nil {
			return err
		}
		if err := existing.Recalculate(row.Amount, meta); err != nil {
			return err
		}
		if err := s.penaltyRepo.SaveGuarded(ctx, existing, penalty.StatusVoided); err != nil {
			return err
		}
		result.Updated++
		result.sample(row, prior)
		return nil
	}

	if existing.Amount.Equal(row.Amount) && existing.Meta.SameBasis(meta) {
		result.Unchanged++
		result.sample(row, existing.Amount)
		return nil
	}
	prior := existing.Amount
	if err := existing.Recalculate(row.Amount, meta); err != nil {
		return err
	}
	if err := s.penaltyRepo.SaveGuarded(ctx, existing, penalty.StatusActive); err != nil {
		return err
	}
	result.Updated++
	result.sample(row, prior)
	return nil
}

func (r *RecalculateResult) sample(row *penalty.PreviewRow, prior decimal.Decimal) {
	if len(r.Samples) >= recalculateSampleLimit {
		return
	}
	r.Samples = append(r.Samples, RecalculateSample{PreviewRow: *row, PriorAmount: prior})
}

// Freeze excludes a penalty row from recalculation
func (s *Service) Freeze(ctx context.Context, id, actorID uuid.UUID, reason string) (*penalty.PenaltyAccrual, error) {
	return s.transition(ctx, id, penalty.StatusActive, func(row *penalty.PenaltyAccrual) error {
		return row.Freeze(actorID, reason)
	})
}

// Unfreeze returns a frozen row to recalculation
func (s *Service) Unfreeze(ctx context.Context, id, actorID uuid.UUID) (*penalty.PenaltyAccrual, error) {
	return s.transition(ctx, id, penalty.StatusFrozen, func(row *penalty.PenaltyAccrual) error {
		return row.Unfreeze(actorID)
	})
}

// Void retracts a penalty row
func (s *Service) Void(ctx context.Context, id, actorID uuid.UUID, reason string) (*penalty.PenaltyAccrual, error) {
	row, err := s.penaltyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := row.Status
	if err := row.Void(actorID, reason); err != nil {
		return nil, err
	}
	if err := s.penaltyRepo.SaveGuarded(ctx, row, expected); err != nil {
		return nil, err
	}
	return row, nil
}

// Unvoid returns a voided row to active
func (s *Service) Unvoid(ctx context.Context, id, actorID uuid.UUID) (*penalty.PenaltyAccrual, error) {
	return s.transition(ctx, id, penalty.StatusVoided, func(row *penalty.PenaltyAccrual) error {
		return row.Unvoid(actorID)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, expected penalty.Status, apply func(*penalty.PenaltyAccrual) error) (*penalty.PenaltyAccrual, error) {
	row, err := s.penaltyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(row); err != nil {
		return nil, err
	}
	if err := s.penaltyRepo.SaveGuarded(ctx, row, expected); err != nil {
		return nil, err
	}
	return row, nil
}

// Get returns one penalty row
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*penalty.PenaltyAccrual, error) {
	return s.penaltyRepo.FindByID(ctx, id)
}

// ListByPeriod returns the penalty ledger of one period
func (s *Service) ListByPeriod(ctx context.Context, period valueobject.Period, includeVoided bool) ([]penalty.PenaltyAccrual, error) {
	return s.penaltyRepo.ListByPeriod(ctx, period, includeVoided)
}

// Charge materializes an active penalty row as a billable accrual so the
// allocation engine can collect it. The accrual carries the penalty
// category, which keeps it out of future penalty bases.
func (s *Service) Charge(ctx context.Context, id, actorID uuid.UUID) (*billing.Accrual, error) {
	row, err := s.penaltyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	accrual, err := billing.NewAccrual(row.PropertyID, row.Period, billing.AccrualCategoryPenalty,
		valueobject.NewMoneyRUB(row.Amount))
	if err != nil {
		return nil, err
	}
	accrual.SetCreatedBy(actorID)
	accrual.Description = fmt.Sprintf("Пени за период %s", row.Period)

	if err := row.AttachCharge(accrual.ID); err != nil {
		return nil, err
	}
	if err := s.accrualRepo.Save(ctx, accrual); err != nil {
		return nil, err
	}
	if err := s.penaltyRepo.SaveGuarded(ctx, row, penalty.StatusActive); err != nil {
		return nil, err
	}

	s.logger.Info("Penalty charged",
		zap.String("penalty_id", id.String()),
		zap.String("accrual_id", accrual.ID.String()),
		zap.String("amount", row.Amount.StringFixed(2)))
	return accrual, nil
}
