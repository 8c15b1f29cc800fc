package importer

import (
	"context"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

var (
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "import job not found")
)

// Store persists import jobs. Update overwrites the full job snapshot; the
// service owns counter arithmetic and writes snapshots at transition points.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID id.JobID) (*Job, error)
	Update(ctx context.Context, job *Job) error

	// FindActive returns the pending or processing job for the given
	// institution and source name, or ErrNotFound.
	FindActive(ctx context.Context, institutionID id.InstitutionID, sourceName string) (*Job, error)
	ListByInstitution(ctx context.Context, institutionID id.InstitutionID) ([]Job, error)
}

// ConnectionStore persists external database descriptors.
type ConnectionStore interface {
	Save(ctx context.Context, conn *DatabaseConnection) error
	ListByInstitution(ctx context.Context, institutionID id.InstitutionID) ([]DatabaseConnection, error)
}
