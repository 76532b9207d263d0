package bulk

import (
	"context"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ImportJobRepository provides access to import job records
type ImportJobRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]ImportJob, error)
	Save(ctx context.Context, job *ImportJob) error
}
