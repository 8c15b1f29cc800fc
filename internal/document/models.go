package document

import (
	"time"

	id "trustdoc/pkg/domain"
)

// Status is the persistent lifecycle state of a Document.
type Status string

const (
	StatusIssued    Status = "issued"
	StatusRevoked   Status = "revoked"
	StatusSuspended Status = "suspended"
)

// CanTransition reports whether the lifecycle allows moving to the target
// status. Revocation is terminal; suspension is reversible.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusIssued:
		return to == StatusRevoked || to == StatusSuspended
	case StatusSuspended:
		return to == StatusIssued || to == StatusRevoked
	default:
		return false
	}
}

// Document is a tamper-evident credential. Content is the immutable snapshot
// of the field values the integrity hash binds to the identifier.
type Document struct {
	ID                id.DocumentID
	InstitutionID     id.InstitutionID
	TemplateID        id.TemplateID
	StudentName       string
	Content           map[string]string
	Hash              string
	Status            Status
	IssuedBy          id.ActorID
	IssuedAt          time.Time
	VerificationCount int64
	LastVerified      *time.Time
}
