package ports

import (
	"context"

	"github.com/aretw0/plantopt/pkg/domain"
)

// ResultStore archives solved runs so that past results stay reproducible.
type ResultStore interface {
	// Save persists the record under record.ID.
	Save(ctx context.Context, record *domain.RunRecord) error

	// Load retrieves a record.
	// Returns domain.ErrResultNotFound if the record does not exist.
	Load(ctx context.Context, id string) (*domain.RunRecord, error)

	// Delete removes a record.
	Delete(ctx context.Context, id string) error

	// List returns the identifiers of the archived records, most recent first.
	List(ctx context.Context) ([]string, error)
}
