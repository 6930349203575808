package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Upsert(ctx context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, j Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return false, nil
	}
	s.jobs[j.ID] = j
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) DeleteIfFireAt(ctx context.Context, jobID string, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok && j.FireAt.Equal(fireAt) {
		delete(s.jobs, jobID)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(Job) bool { return true }), nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(j Job) bool { return !j.FireAt.After(now) }), nil
}

func (s *MemoryStore) sorted(keep func(Job) bool) []Job {
	var result []Job
	for _, j := range s.jobs {
		if keep(j) {
			result = append(result, j)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].FireAt.Before(result[k].FireAt) })
	return result
}
