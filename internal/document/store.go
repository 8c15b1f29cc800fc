package document

import (
	"context"
	"time"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "document not found")
	// ErrDuplicateID signals an identifier collision on create; callers retry
	// with a fresh sequence.
	ErrDuplicateID = dErrors.New(dErrors.CodeConflict, "document identifier already exists")
)

// Store persists documents. RecordVerification must be atomic: concurrent
// verifications of the same document may not lose counter increments.
type Store interface {
	Create(ctx context.Context, doc *Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*Document, error)
	UpdateStatus(ctx context.Context, docID id.DocumentID, status Status) error
	RecordVerification(ctx context.Context, docID id.DocumentID, at time.Time) (int64, error)
	CountByInstitution(ctx context.Context, institutionID id.InstitutionID) (int, error)
}
