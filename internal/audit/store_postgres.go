package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

// PostgresStore implements Store using PostgreSQL. The BIGSERIAL seq column
// provides the insertion order used to tie-break equal timestamps.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append accepts entries without an institution (verify attempts against
// unknown identifiers); they are stored under the zero UUID. Queries always
// scope to a concrete institution.
func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var documentID *string
	if !entry.DocumentID.IsNil() {
		docID := string(entry.DocumentID)
		documentID = &docID
	}

	query := `
		INSERT INTO audit_entries (
			id, action, document_id, actor_id, institution_id,
			metadata, origin_ip, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`
	err = s.db.QueryRowContext(ctx, query,
		entry.ID,
		string(entry.Action),
		documentID,
		uuid.UUID(entry.ActorID),
		uuid.UUID(entry.InstitutionID),
		metadata,
		entry.OriginIP,
		entry.Timestamp,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit query requires an institution")
	}

	var (
		conds = []string{"institution_id = $1"}
		args  = []any{uuid.UUID(filter.InstitutionID)}
	)

	if !filter.DocumentID.IsNil() {
		args = append(args, string(filter.DocumentID))
		conds = append(conds, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT id, seq, action, document_id, actor_id, institution_id,
		       metadata, origin_ip, occurred_at
		FROM audit_entries
		WHERE %s
		ORDER BY occurred_at, seq
	`, strings.Join(conds, " AND "))

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var (
			entry         Entry
			action        string
			documentID    *string
			actorID       uuid.UUID
			institutionID uuid.UUID
			metadata      []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.Seq,
			&action,
			&documentID,
			&actorID,
			&institutionID,
			&metadata,
			&entry.OriginIP,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.Action = Action(action)
		entry.ActorID = id.ActorID(actorID)
		entry.InstitutionID = id.InstitutionID(institutionID)
		if documentID != nil {
			entry.DocumentID = id.DocumentID(*documentID)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}
