// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "trustdoc/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing ActorID where InstitutionID is expected.
type (
	InstitutionID uuid.UUID
	ActorID       uuid.UUID
	StudentID     uuid.UUID
	TemplateID    uuid.UUID
	JobID         uuid.UUID
	ConnectionID  uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseInstitutionID(s string) (InstitutionID, error) {
	id, err := parseUUID(s, "institution ID")
	return InstitutionID(id), err
}

func ParseActorID(s string) (ActorID, error) {
	id, err := parseUUID(s, "actor ID")
	return ActorID(id), err
}

func ParseStudentID(s string) (StudentID, error) {
	id, err := parseUUID(s, "student ID")
	return StudentID(id), err
}

func ParseTemplateID(s string) (TemplateID, error) {
	id, err := parseUUID(s, "template ID")
	return TemplateID(id), err
}

func ParseJobID(s string) (JobID, error) {
	id, err := parseUUID(s, "job ID")
	return JobID(id), err
}

func ParseConnectionID(s string) (ConnectionID, error) {
	id, err := parseUUID(s, "connection ID")
	return ConnectionID(id), err
}

// String methods - for logging and debugging.

func (id InstitutionID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string       { return uuid.UUID(id).String() }
func (id StudentID) String() string     { return uuid.UUID(id).String() }
func (id TemplateID) String() string    { return uuid.UUID(id).String() }
func (id JobID) String() string         { return uuid.UUID(id).String() }
func (id ConnectionID) String() string  { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id InstitutionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id StudentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id JobID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic.
// Nil UUIDs are allowed here; callers use IsNil() at the service layer so
// store lookups can return proper "not found" errors for consistency.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
