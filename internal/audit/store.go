package audit

import (
	"context"

	dErrors "trustdoc/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "audit entry not found")
)

// Store persists the audit trail. Append assigns the entry's insertion
// sequence; appends must be serializable per institution so the (timestamp,
// seq) order is total. Implementations never mutate or remove entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]Entry, error)
}
