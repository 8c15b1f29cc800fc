package audit

import (
	"context"
	"sort"
	"sync"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

// InMemoryStore keeps the audit trail in process memory. Appends are
// serialized per institution; appends for different institutions interleave.
type InMemoryStore struct {
	mu   sync.RWMutex
	logs map[id.InstitutionID]*institutionLog
}

type institutionLog struct {
	mu      sync.Mutex
	nextSeq int64
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{logs: make(map[id.InstitutionID]*institutionLog)}
}

func (s *InMemoryStore) logFor(institutionID id.InstitutionID) *institutionLog {
	s.mu.RLock()
	log, ok := s.logs[institutionID]
	s.mu.RUnlock()
	if ok {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok = s.logs[institutionID]; ok {
		return log
	}
	log = &institutionLog{nextSeq: 1}
	s.logs[institutionID] = log
	return log
}

// Append accepts entries without an institution (verify attempts against
// unknown identifiers); they land in the zero-ID bucket. Queries always scope
// to a concrete institution.
func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	log := s.logFor(entry.InstitutionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	entry.Seq = log.nextSeq
	log.nextSeq++
	log.entries = append(log.entries, *entry)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, filter Filter) ([]Entry, error) {
	if filter.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit query requires an institution")
	}

	log := s.logFor(filter.InstitutionID)
	log.mu.Lock()
	matched := make([]Entry, 0, len(log.entries))
	for _, e := range log.entries {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}
	log.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Seq < matched[j].Seq
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	return page(matched, filter.Offset, filter.Limit), nil
}

func matches(e Entry, f Filter) bool {
	if !f.DocumentID.IsNil() && e.DocumentID != f.DocumentID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

func page(entries []Entry, offset, limit int) []Entry {
	if offset >= len(entries) {
		return []Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return append([]Entry{}, entries...)
}
