package importer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
)

// InMemoryStore keeps import jobs in process memory.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[id.JobID]*Job
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[id.JobID]*Job)}
}

func (s *InMemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID.IsNil() {
		job.ID = id.JobID(uuid.New())
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, jobID id.JobID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *InMemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *InMemoryStore) FindActive(_ context.Context, institutionID id.InstitutionID, sourceName string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.InstitutionID == institutionID && job.SourceName == sourceName && !job.Status.Terminal() {
			return cloneJob(job), nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListByInstitution(_ context.Context, institutionID id.InstitutionID) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Job
	for _, job := range s.jobs {
		if job.InstitutionID == institutionID {
			out = append(out, *cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneJob(job *Job) *Job {
	copied := *job
	if job.RowErrors != nil {
		copied.RowErrors = make([]RowError, len(job.RowErrors))
		copy(copied.RowErrors, job.RowErrors)
	}
	if job.CompletedAt != nil {
		at := *job.CompletedAt
		copied.CompletedAt = &at
	}
	return &copied
}

// InMemoryConnectionStore keeps connection descriptors in process memory.
type InMemoryConnectionStore struct {
	mu    sync.RWMutex
	conns map[id.ConnectionID]*DatabaseConnection
}

func NewInMemoryConnectionStore() *InMemoryConnectionStore {
	return &InMemoryConnectionStore{conns: make(map[id.ConnectionID]*DatabaseConnection)}
}

func (s *InMemoryConnectionStore) Save(_ context.Context, conn *DatabaseConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn.ID.IsNil() {
		conn.ID = id.ConnectionID(uuid.New())
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}
	copied := *conn
	s.conns[conn.ID] = &copied
	return nil
}

func (s *InMemoryConnectionStore) ListByInstitution(_ context.Context, institutionID id.InstitutionID) ([]DatabaseConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DatabaseConnection
	for _, conn := range s.conns {
		if conn.InstitutionID == institutionID {
			out = append(out, *conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
