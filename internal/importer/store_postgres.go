package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
)

// PostgresStore implements Store using PostgreSQL. Row errors are stored as a
// JSONB array on the job row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	if job.ID.IsNil() {
		job.ID = id.JobID(uuid.New())
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	rowErrors, err := marshalRowErrors(job.RowErrors)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (
			id, institution_id, source_name, file_size, total_rows,
			processed_rows, success_rows, error_rows, status, row_errors,
			failure_reason, submitted_by, created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		uuid.UUID(job.ID),
		uuid.UUID(job.InstitutionID),
		job.SourceName,
		job.FileSize,
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessRows,
		job.ErrorRows,
		string(job.Status),
		rowErrors,
		nullString(job.FailureReason),
		uuid.UUID(job.SubmittedBy),
		job.CreatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID id.JobID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectJobs+` WHERE id = $1`, uuid.UUID(jobID))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query import job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Update(ctx context.Context, job *Job) error {
	rowErrors, err := marshalRowErrors(job.RowErrors)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs SET
			total_rows     = $2,
			processed_rows = $3,
			success_rows   = $4,
			error_rows     = $5,
			status         = $6,
			row_errors     = $7,
			failure_reason = $8,
			completed_at   = $9
		WHERE id = $1
	`,
		uuid.UUID(job.ID),
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessRows,
		job.ErrorRows,
		string(job.Status),
		rowErrors,
		nullString(job.FailureReason),
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, institutionID id.InstitutionID, sourceName string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		selectJobs+` WHERE institution_id = $1 AND source_name = $2 AND status IN ('pending', 'processing') LIMIT 1`,
		uuid.UUID(institutionID), sourceName)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active import job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListByInstitution(ctx context.Context, institutionID id.InstitutionID) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		selectJobs+` WHERE institution_id = $1 ORDER BY created_at`,
		uuid.UUID(institutionID))
	if err != nil {
		return nil, fmt.Errorf("query import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import jobs: %w", err)
	}
	return jobs, nil
}

const selectJobs = `
	SELECT id, institution_id, source_name, file_size, total_rows,
	       processed_rows, success_rows, error_rows, status, row_errors,
	       failure_reason, submitted_by, created_at, completed_at
	FROM import_jobs
`

type jobScanner interface {
	Scan(dest ...any) error
}

func scanJob(row jobScanner) (*Job, error) {
	var (
		job           Job
		jobID         uuid.UUID
		institutionID uuid.UUID
		submittedBy   uuid.UUID
		status        string
		rowErrors     []byte
		failureReason sql.NullString
		completedAt   sql.NullTime
	)
	err := row.Scan(
		&jobID,
		&institutionID,
		&job.SourceName,
		&job.FileSize,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.SuccessRows,
		&job.ErrorRows,
		&status,
		&rowErrors,
		&failureReason,
		&submittedBy,
		&job.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ID = id.JobID(jobID)
	job.InstitutionID = id.InstitutionID(institutionID)
	job.SubmittedBy = id.ActorID(submittedBy)
	job.Status = JobStatus(status)
	job.FailureReason = failureReason.String
	if completedAt.Valid {
		at := completedAt.Time
		job.CompletedAt = &at
	}
	if len(rowErrors) > 0 {
		if err := json.Unmarshal(rowErrors, &job.RowErrors); err != nil {
			return nil, fmt.Errorf("unmarshal row errors: %w", err)
		}
	}
	return &job, nil
}

func marshalRowErrors(rowErrors []RowError) ([]byte, error) {
	if rowErrors == nil {
		rowErrors = []RowError{}
	}
	data, err := json.Marshal(rowErrors)
	if err != nil {
		return nil, fmt.Errorf("marshal row errors: %w", err)
	}
	return data, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// PostgresConnectionStore implements ConnectionStore using PostgreSQL.
type PostgresConnectionStore struct {
	db *sql.DB
}

func NewPostgresConnectionStore(db *sql.DB) *PostgresConnectionStore {
	return &PostgresConnectionStore{db: db}
}

func (s *PostgresConnectionStore) Save(ctx context.Context, conn *DatabaseConnection) error {
	if conn.ID.IsNil() {
		conn.ID = id.ConnectionID(uuid.New())
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO database_connections (
			id, institution_id, name, driver, host, port, database_name,
			username, is_active, last_sync, students_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			driver         = EXCLUDED.driver,
			host           = EXCLUDED.host,
			port           = EXCLUDED.port,
			database_name  = EXCLUDED.database_name,
			username       = EXCLUDED.username,
			is_active      = EXCLUDED.is_active,
			last_sync      = EXCLUDED.last_sync,
			students_count = EXCLUDED.students_count
	`,
		uuid.UUID(conn.ID),
		uuid.UUID(conn.InstitutionID),
		conn.Name,
		conn.Driver,
		conn.Host,
		conn.Port,
		conn.DatabaseName,
		conn.Username,
		conn.IsActive,
		conn.LastSync,
		conn.StudentsCount,
		conn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save database connection: %w", err)
	}
	return nil
}

func (s *PostgresConnectionStore) ListByInstitution(ctx context.Context, institutionID id.InstitutionID) ([]DatabaseConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, institution_id, name, driver, host, port, database_name,
		       username, is_active, last_sync, students_count, created_at
		FROM database_connections
		WHERE institution_id = $1
		ORDER BY name
	`, uuid.UUID(institutionID))
	if err != nil {
		return nil, fmt.Errorf("query database connections: %w", err)
	}
	defer rows.Close()

	var conns []DatabaseConnection
	for rows.Next() {
		var (
			conn     DatabaseConnection
			connID   uuid.UUID
			instID   uuid.UUID
			lastSync sql.NullTime
		)
		err := rows.Scan(&connID, &instID, &conn.Name, &conn.Driver, &conn.Host,
			&conn.Port, &conn.DatabaseName, &conn.Username, &conn.IsActive,
			&lastSync, &conn.StudentsCount, &conn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan database connection: %w", err)
		}
		conn.ID = id.ConnectionID(connID)
		conn.InstitutionID = id.InstitutionID(instID)
		if lastSync.Valid {
			at := lastSync.Time
			conn.LastSync = &at
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate database connections: %w", err)
	}
	return conns, nil
}
