package property

import (
	"context"
	"fmt"
	"strings"

	"github.com/commledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Property represents a plot in the community together with its owner's
// contact details. It is the record payments are resolved against.
type Property struct {
	shared.BaseAggregateRoot
	PlotNumber string `json:"plot_number"` // e.g. "12", "12а"
	Street     string `json:"street"`
	OwnerName  string `json:"owner_name"`
	Phone      string `json:"phone"` // normalized, "+7..." form
	Address    string `json:"address"`
}

// NewProperty creates a new property record
func NewProperty(plotNumber, street, ownerName, phone string) (*Property, error) {
	if strings.TrimSpace(plotNumber) == "" {
		return nil, shared.NewDomainError("INVALID_PLOT_NUMBER", "Plot number cannot be empty")
	}
	return &Property{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PlotNumber:        NormalizePlotNumber(plotNumber),
		Street:            strings.TrimSpace(street),
		OwnerName:         strings.TrimSpace(ownerName),
		Phone:             NormalizePhone(phone),
	}, nil
}

// Label returns the human-readable property label used in reports
func (p *Property) Label() string {
	if p.Street == "" {
		return fmt.Sprintf("уч. %s", p.PlotNumber)
	}
	return fmt.Sprintf("%s, уч. %s", p.Street, p.PlotNumber)
}

// ResidentLabel returns the resident display label used in reports
func (p *Property) ResidentLabel() string {
	return p.OwnerName
}

// Repository provides access to property records
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Property, error)
	FindAll(ctx context.Context) ([]Property, error)
	Save(ctx context.Context, property *Property) error
}
