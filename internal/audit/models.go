package audit

import (
	"time"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
)

// Action enumerates the auditable operations of the core.
type Action string

const (
	ActionIssue   Action = "issue"
	ActionVerify  Action = "verify"
	ActionRevoke  Action = "revoke"
	ActionSuspend Action = "suspend"
	ActionModify  Action = "modify"
)

// Entry is one immutable record in the audit trail. Entries are append-only:
// nothing in this codebase updates or deletes one after Append.
type Entry struct {
	ID            uuid.UUID
	Seq           int64 // insertion sequence, assigned by the store on append
	Action        Action
	DocumentID    id.DocumentID // empty for non-document actions
	ActorID       id.ActorID
	InstitutionID id.InstitutionID
	Metadata      map[string]string
	OriginIP      string
	Timestamp     time.Time
}

// Filter selects entries for a query. InstitutionID is required; the other
// fields narrow the result. Results are ordered by (timestamp, seq) so paging
// is stable even when timestamps collide.
type Filter struct {
	InstitutionID id.InstitutionID
	DocumentID    id.DocumentID
	Action        Action
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}
