package student

import (
	"context"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "student not found")
)

// Store persists student records. Upsert is keyed by (institution, matricule)
// so re-importing the same source is idempotent.
type Store interface {
	Upsert(ctx context.Context, s *Student) error
	FindByMatricule(ctx context.Context, institutionID id.InstitutionID, matricule string) (*Student, error)
	ListByInstitution(ctx context.Context, institutionID id.InstitutionID) ([]Student, error)
	CountByInstitution(ctx context.Context, institutionID id.InstitutionID) (int, error)
}
