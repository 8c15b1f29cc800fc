package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	id "trustdoc/pkg/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, doc *Document) error {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return fmt.Errorf("marshal document content: %w", err)
	}

	query := `
		INSERT INTO documents (
			id, institution_id, template_id, student_name, content, hash,
			status, issued_by, issued_at, verification_count, last_verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(doc.ID),
		uuid.UUID(doc.InstitutionID),
		uuid.UUID(doc.TemplateID),
		doc.StudentName,
		content,
		doc.Hash,
		string(doc.Status),
		uuid.UUID(doc.IssuedBy),
		doc.IssuedAt,
		doc.VerificationCount,
		doc.LastVerified,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*Document, error) {
	query := `
		SELECT id, institution_id, template_id, student_name, content, hash,
		       status, issued_by, issued_at, verification_count, last_verified
		FROM documents
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, string(docID))

	var (
		doc           Document
		rawID         string
		institutionID uuid.UUID
		templateID    uuid.UUID
		content       []byte
		status        string
		issuedBy      uuid.UUID
	)
	err := row.Scan(
		&rawID,
		&institutionID,
		&templateID,
		&doc.StudentName,
		&content,
		&doc.Hash,
		&status,
		&issuedBy,
		&doc.IssuedAt,
		&doc.VerificationCount,
		&doc.LastVerified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}

	doc.ID = id.DocumentID(rawID)
	doc.InstitutionID = id.InstitutionID(institutionID)
	doc.TemplateID = id.TemplateID(templateID)
	doc.Status = Status(status)
	doc.IssuedBy = id.ActorID(issuedBy)
	if len(content) > 0 {
		if err := json.Unmarshal(content, &doc.Content); err != nil {
			return nil, fmt.Errorf("unmarshal document content: %w", err)
		}
	}
	return &doc, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, docID id.DocumentID, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = $2 WHERE id = $1`,
		string(docID), string(status),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordVerification bumps the counter and last-verified stamp in one UPDATE
// so concurrent verifications never lose increments.
func (s *PostgresStore) RecordVerification(ctx context.Context, docID id.DocumentID, at time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET verification_count = verification_count + 1, last_verified = $2
		WHERE id = $1
		RETURNING verification_count
	`, string(docID), at).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record verification: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountByInstitution(ctx context.Context, institutionID id.InstitutionID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE institution_id = $1`,
		uuid.UUID(institutionID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}
