package document

import (
	"context"
	"maps"
	"sync"
	"time"

	id "trustdoc/pkg/domain"
)

// InMemoryStore keeps documents in process memory. It favors clarity over
// performance and backs unit tests and development mode.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.DocumentID]*Document)}
}

func (s *InMemoryStore) Create(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return ErrDuplicateID
	}
	s.docs[doc.ID] = clone(doc)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, docID id.DocumentID) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, docID id.DocumentID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	return nil
}

func (s *InMemoryStore) RecordVerification(_ context.Context, docID id.DocumentID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return 0, ErrNotFound
	}
	doc.VerificationCount++
	doc.LastVerified = &at
	return doc.VerificationCount, nil
}

func (s *InMemoryStore) CountByInstitution(_ context.Context, institutionID id.InstitutionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, doc := range s.docs {
		if doc.InstitutionID == institutionID {
			count++
		}
	}
	return count, nil
}

func clone(doc *Document) *Document {
	c := *doc
	c.Content = maps.Clone(doc.Content)
	if doc.LastVerified != nil {
		lv := *doc.LastVerified
		c.LastVerified = &lv
	}
	return &c
}
