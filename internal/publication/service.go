// Package publication implements the publish/unpublish/delete transitions on
// a record's tag set. All three are single-document read-modify-write
// operations; two racing publishes resolve with the loser seeing a conflict,
// never with corrupted tags.
package publication

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pubrec/internal/platform/metrics"
	"pubrec/internal/records"
	dErrors "pubrec/pkg/domain-errors"
	"pubrec/pkg/platform/sentinel"
	"pubrec/pkg/roles"
)

// Conflict messages are part of the public contract; clients match on them.
const (
	MsgAlreadyPublished   = "Object already published"
	MsgAlreadyUnpublished = "Object already unpublished"
)

// updatedByPublication is the actor stamped on records this service touches.
// Tokens carry roles, not a user identity, so the service identifies itself.
const updatedByPublication = "publication-api"

type Service struct {
	store   records.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store records.Store, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, log: log, metrics: m, now: time.Now}
}

// Publish appends the public tag to the record's read set. Publishing an
// already-published record is rejected, not silently accepted: the caller
// stated an intent that is already true, and the double call usually means a
// stale view of the record.
func (s *Service) Publish(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error) {
	r, err := s.get(ctx, schema, id)
	if err != nil {
		return nil, err
	}
	if r.Read.Contains(roles.Public) {
		if s.metrics != nil {
			s.metrics.PublishConflicts.Inc()
		}
		return nil, dErrors.New(dErrors.CodeConflict, MsgAlreadyPublished)
	}
	r.Read = r.Read.Add(roles.Public)
	r.UpdatedBy = updatedByPublication
	r.DateUpdated = s.now()
	if err := s.store.Update(ctx, r); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist publish", err)
	}
	s.log.Info("record published", "record_id", id.String(), "schema", string(r.SchemaName))
	return r, nil
}

// Unpublish removes every occurrence of the public tag from the read set.
func (s *Service) Unpublish(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error) {
	r, err := s.get(ctx, schema, id)
	if err != nil {
		return nil, err
	}
	if !r.Read.Contains(roles.Public) {
		if s.metrics != nil {
			s.metrics.PublishConflicts.Inc()
		}
		return nil, dErrors.New(dErrors.CodeConflict, MsgAlreadyUnpublished)
	}
	r.Read = r.Read.Remove(roles.Public)
	r.UpdatedBy = updatedByPublication
	r.DateUpdated = s.now()
	if err := s.store.Update(ctx, r); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist unpublish", err)
	}
	s.log.Info("record unpublished", "record_id", id.String(), "schema", string(r.SchemaName))
	return r, nil
}

// Delete soft-deletes: strips public visibility from the master and every
// flavour and sets the deleted flag. Unlike publish/unpublish there is no
// conflict state; deleting a deleted record is a no-op that succeeds, so the
// operation is safely repeatable.
func (s *Service) Delete(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error) {
	r, err := s.get(ctx, schema, id)
	if err != nil {
		return nil, err
	}
	r.Read = r.Read.Remove(roles.Public)
	r.Write = r.Write.Remove(roles.Public)
	r.IsDeleted = true
	r.UpdatedBy = updatedByPublication
	r.DateUpdated = s.now()
	if err := s.store.Update(ctx, r); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist delete", err)
	}

	for _, ref := range r.FlavourRefs {
		f, err := s.store.GetFlavour(ctx, ref.ID)
		if err != nil {
			s.log.Error("flavour missing during delete", "record_id", id.String(), "flavour_id", ref.ID.String(), "error", err)
			continue
		}
		if !f.Read.Contains(roles.Public) && !f.Write.Contains(roles.Public) {
			continue
		}
		f.Read = f.Read.Remove(roles.Public)
		f.Write = f.Write.Remove(roles.Public)
		if err := s.store.UpdateFlavour(ctx, f); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "persist flavour delete", err)
		}
	}

	s.log.Info("record deleted", "record_id", id.String(), "schema", string(r.SchemaName))
	return r, nil
}

func (s *Service) get(ctx context.Context, schema records.SchemaName, id uuid.UUID) (*records.MasterRecord, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load record", err)
	}
	if r.SchemaName != schema {
		// The id resolved to a record of a different subtype; treat the
		// path as not found rather than leaking the mismatch.
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	return r, nil
}
