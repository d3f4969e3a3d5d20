package records

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pubrec/pkg/platform/sentinel"
)

// MemoryStore keeps records in process memory. It backs unit tests and local
// development; the Postgres store is the production implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	masters  map[uuid.UUID]*MasterRecord
	flavours map[uuid.UUID]*FlavourRecord
	order    []uuid.UUID // insertion order, the store's stable iteration order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		masters:  make(map[uuid.UUID]*MasterRecord),
		flavours: make(map[uuid.UUID]*FlavourRecord),
	}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.masters[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyMaster(r), nil
}

func (s *MemoryStore) FindByCorrelation(_ context.Context, schema SchemaName, sourceSystemRef, correlationID string) (*MasterRecord, error) {
	if correlationID == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		r := s.masters[id]
		if r.SchemaName == schema && r.CorrelationID(sourceSystemRef) == correlationID {
			return copyMaster(r), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Find(_ context.Context, f Filter) ([]*MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*MasterRecord
	for _, id := range s.order {
		r := s.masters[id]
		if matches(r, f) {
			out = append(out, copyMaster(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, r *MasterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.masters[r.ID]; ok {
		return sentinel.ErrConflict
	}
	s.masters[r.ID] = copyMaster(r)
	s.order = append(s.order, r.ID)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, r *MasterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.masters[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.masters[r.ID] = copyMaster(r)
	return nil
}

func (s *MemoryStore) GetFlavour(_ context.Context, id uuid.UUID) (*FlavourRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flavours[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) InsertFlavour(_ context.Context, f *FlavourRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flavours[f.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *f
	s.flavours[f.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateFlavour(_ context.Context, f *FlavourRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flavours[f.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *f
	s.flavours[f.ID] = &cp
	return nil
}

func matches(r *MasterRecord, f Filter) bool {
	if f.ID != nil && r.ID != *f.ID {
		return false
	}
	if len(f.Schemas) > 0 {
		found := false
		for _, s := range f.Schemas {
			if r.SchemaName == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for key, vals := range f.And {
		if !anyEqual(r.FieldString(key), vals) {
			return false
		}
	}
	for key, vals := range f.In {
		if !anyEqual(r.FieldString(key), vals) {
			return false
		}
	}
	for key, vals := range f.Nor {
		if anyEqual(r.FieldString(key), vals) {
			return false
		}
	}
	if len(f.Or) > 0 {
		found := false
		for key, vals := range f.Or {
			if anyEqual(r.FieldString(key), vals) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Keywords != "" && !KeywordMatch(r, f.Keywords, f.Subset) {
		return false
	}
	return true
}

func anyEqual(have string, want []string) bool {
	for _, w := range want {
		if have == w {
			return true
		}
	}
	return false
}

func copyMaster(r *MasterRecord) *MasterRecord {
	cp := *r
	if r.IssuedTo != nil {
		it := *r.IssuedTo
		cp.IssuedTo = &it
	}
	cp.FlavourRefs = append([]FlavourRef(nil), r.FlavourRefs...)
	return &cp
}
