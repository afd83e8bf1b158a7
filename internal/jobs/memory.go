package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/libelia/libelia/internal/model"
)

// MemoryStore keeps jobs in process memory. Records expire after the TTL.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	jobs map[string]model.Job
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, jobs: make(map[string]model.Job)}
}

func (s *MemoryStore) Create(ctx context.Context) (*model.Job, error) {
	job := newJob()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired()
	s.jobs[job.ID] = *job
	return job, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || s.expired(job) {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, u Update) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || s.expired(job) {
		return nil, ErrNotFound
	}
	if err := apply(&job, u); err != nil {
		return nil, err
	}
	s.jobs[id] = job
	return &job, nil
}

func (s *MemoryStore) expired(job model.Job) bool {
	return time.Since(job.UpdatedAt) > s.ttl
}

func (s *MemoryStore) evictExpired() {
	for id, job := range s.jobs {
		if s.expired(job) {
			delete(s.jobs, id)
		}
	}
}
