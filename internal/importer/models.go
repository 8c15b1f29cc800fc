package importer

import (
	"time"

	id "trustdoc/pkg/domain"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks one bulk student import. Counters hold the invariant
// ProcessedRows = SuccessRows + ErrorRows <= TotalRows at every observable
// point, and CompletedAt is set exactly once on the terminal transition.
type Job struct {
	ID            id.JobID
	InstitutionID id.InstitutionID
	SourceName    string
	FileSize      int64
	TotalRows     int
	ProcessedRows int
	SuccessRows   int
	ErrorRows     int
	Status        JobStatus
	RowErrors     []RowError
	FailureReason string
	SubmittedBy   id.ActorID
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// RowError records a single rejected row. Row is 1-based over data rows,
// excluding the header.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// DatabaseConnection describes an institutional records database that can
// feed imports. It is a descriptor only; no live connection is held.
type DatabaseConnection struct {
	ID            id.ConnectionID
	InstitutionID id.InstitutionID
	Name          string
	Driver        string
	Host          string
	Port          int
	DatabaseName  string
	Username      string
	IsActive      bool
	LastSync      *time.Time
	StudentsCount int
	CreatedAt     time.Time
}
