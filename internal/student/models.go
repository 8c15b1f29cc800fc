package student

import (
	"time"

	id "trustdoc/pkg/domain"
)

// Status is the lifecycle state of a student record.
type Status string

const (
	StatusActive    Status = "active"
	StatusGraduated Status = "graduated"
	StatusSuspended Status = "suspended"
)

// Student is one academic record in the registry that downstream issuance
// consumes. Matricule is the institution-scoped unique key.
type Student struct {
	ID             id.StudentID
	InstitutionID  id.InstitutionID
	Matricule      string
	FirstName      string
	LastName       string
	Email          string
	BirthDate      string
	BirthPlace     string
	Discipline     string
	Specialization string
	AcademicYear   string
	Average        float64
	Grade          string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins the name fields for display and document issuance.
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Grade labels use the French mention scale.
const (
	GradeTresBien    = "Très Bien"
	GradeBien        = "Bien"
	GradeAssezBien   = "Assez Bien"
	GradePassable    = "Passable"
	GradeInsuffisant = "Insuffisant"
)

// GradeFor derives the mention label from a 0-20 average. Pure function with
// fixed thresholds; the stored grade is always recomputed from the average.
func GradeFor(average float64) string {
	switch {
	case average >= 16:
		return GradeTresBien
	case average >= 14:
		return GradeBien
	case average >= 12:
		return GradeAssezBien
	case average >= 10:
		return GradePassable
	default:
		return GradeInsuffisant
	}
}
