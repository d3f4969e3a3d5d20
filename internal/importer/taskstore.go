package importer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pubrec/pkg/platform/sentinel"
)

// TaskStore persists task audit records.
type TaskStore interface {
	Create(ctx context.Context, t *TaskRecord) error
	Update(ctx context.Context, t *TaskRecord) error
	Get(ctx context.Context, id uuid.UUID) (*TaskRecord, error)
}

// MemoryTaskStore backs unit tests and local runs.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*TaskRecord
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[uuid.UUID]*TaskRecord)}
}

func (s *MemoryTaskStore) Create(_ context.Context, t *TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return sentinel.ErrConflict
	}
	s.tasks[t.ID] = copyTask(t)
	return nil
}

func (s *MemoryTaskStore) Update(_ context.Context, t *TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.tasks[t.ID] = copyTask(t)
	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, id uuid.UUID) (*TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyTask(t), nil
}

func copyTask(t *TaskRecord) *TaskRecord {
	cp := *t
	cp.IndividualRecordStatus = append([]RowStatus(nil), t.IndividualRecordStatus...)
	return &cp
}
