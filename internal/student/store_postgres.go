package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
)

// PostgresStore implements Store using PostgreSQL. The UNIQUE
// (institution_id, matricule) constraint backs the idempotent upsert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, st *Student) error {
	if st.ID.IsNil() {
		st.ID = id.StudentID(uuid.New())
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO students (
			id, institution_id, matricule, first_name, last_name, email,
			birth_date, birth_place, discipline, specialization,
			academic_year, average, grade, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (institution_id, matricule) DO UPDATE SET
			first_name     = EXCLUDED.first_name,
			last_name      = EXCLUDED.last_name,
			email          = EXCLUDED.email,
			birth_date     = EXCLUDED.birth_date,
			birth_place    = EXCLUDED.birth_place,
			discipline     = EXCLUDED.discipline,
			specialization = EXCLUDED.specialization,
			academic_year  = EXCLUDED.academic_year,
			average        = EXCLUDED.average,
			grade          = EXCLUDED.grade,
			status         = EXCLUDED.status,
			updated_at     = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	var (
		returnedID uuid.UUID
		createdAt  time.Time
	)
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(st.ID),
		uuid.UUID(st.InstitutionID),
		st.Matricule,
		st.FirstName,
		st.LastName,
		nullable(st.Email),
		st.BirthDate,
		st.BirthPlace,
		st.Discipline,
		nullable(st.Specialization),
		st.AcademicYear,
		st.Average,
		st.Grade,
		string(st.Status),
		now,
	).Scan(&returnedID, &createdAt)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}

	st.ID = id.StudentID(returnedID)
	st.CreatedAt = createdAt
	st.UpdatedAt = now
	return nil
}

func (s *PostgresStore) FindByMatricule(ctx context.Context, institutionID id.InstitutionID, matricule string) (*Student, error) {
	row := s.db.QueryRowContext(ctx, selectStudents+` WHERE institution_id = $1 AND matricule = $2`,
		uuid.UUID(institutionID), matricule)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListByInstitution(ctx context.Context, institutionID id.InstitutionID) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, selectStudents+` WHERE institution_id = $1 ORDER BY matricule`,
		uuid.UUID(institutionID))
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

func (s *PostgresStore) CountByInstitution(ctx context.Context, institutionID id.InstitutionID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE institution_id = $1`,
		uuid.UUID(institutionID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

const selectStudents = `
	SELECT id, institution_id, matricule, first_name, last_name, email,
	       birth_date, birth_place, discipline, specialization,
	       academic_year, average, grade, status, created_at, updated_at
	FROM students
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*Student, error) {
	var (
		st             Student
		studentID      uuid.UUID
		institutionID  uuid.UUID
		email          sql.NullString
		specialization sql.NullString
		status         string
	)
	err := row.Scan(
		&studentID,
		&institutionID,
		&st.Matricule,
		&st.FirstName,
		&st.LastName,
		&email,
		&st.BirthDate,
		&st.BirthPlace,
		&st.Discipline,
		&specialization,
		&st.AcademicYear,
		&st.Average,
		&st.Grade,
		&status,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.ID = id.StudentID(studentID)
	st.InstitutionID = id.InstitutionID(institutionID)
	st.Email = email.String
	st.Specialization = specialization.String
	st.Status = Status(status)
	return &st, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
