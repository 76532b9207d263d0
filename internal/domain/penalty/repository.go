package penalty

import (
	"context"

	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Repository provides access to penalty ledger rows. One row exists per
// (property, period) pair; its lifecycle decides whether recalculation may
// touch it.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PenaltyAccrual, error)
	FindByPropertyAndPeriod(ctx context.Context, propertyID uuid.UUID, period valueobject.Period) (*PenaltyAccrual, error)
	ListByPeriod(ctx context.Context, period valueobject.Period, includeVoided bool) ([]PenaltyAccrual, error)

	Save(ctx context.Context, row *PenaltyAccrual) error
	// SaveGuarded persists a lifecycle transition with the expected prior
	// status embedded in the write condition, so concurrent conflicting
	// transitions cannot both succeed. Returns a CONCURRENCY_CONFLICT
	// domain error when the row is no longer in the expected status.
	SaveGuarded(ctx context.Context, row *PenaltyAccrual, expectedStatus Status) error
}
