package student

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
)

type matriculeKey struct {
	institutionID id.InstitutionID
	matricule     string
}

// InMemoryStore keeps student records in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	students map[matriculeKey]*Student
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{students: make(map[matriculeKey]*Student)}
}

func (s *InMemoryStore) Upsert(_ context.Context, st *Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := matriculeKey{st.InstitutionID, st.Matricule}
	now := time.Now().UTC()

	if existing, ok := s.students[key]; ok {
		st.ID = existing.ID
		st.CreatedAt = existing.CreatedAt
	} else {
		if st.ID.IsNil() {
			st.ID = id.StudentID(uuid.New())
		}
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	copied := *st
	s.students[key] = &copied
	return nil
}

func (s *InMemoryStore) FindByMatricule(_ context.Context, institutionID id.InstitutionID, matricule string) (*Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[matriculeKey{institutionID, matricule}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *st
	return &copied, nil
}

func (s *InMemoryStore) ListByInstitution(_ context.Context, institutionID id.InstitutionID) ([]Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Student
	for key, st := range s.students {
		if key.institutionID == institutionID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Matricule < out[j].Matricule })
	return out, nil
}

func (s *InMemoryStore) CountByInstitution(_ context.Context, institutionID id.InstitutionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.students {
		if key.institutionID == institutionID {
			count++
		}
	}
	return count, nil
}
