// Package controller owns physical persistence of a master record together
// with its flavour sub-records. Everything else (importer, publication, human
// edit paths) goes through here so the master/flavour relationship invariants
// have a single enforcement point.
//
// Writes are not atomic across master and flavours: a flavour can land
// without its master if the master insert fails. That partial state is
// logged, left for the next reconciliation run to converge, and accepted by
// design.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pubrec/internal/records"
)

type Controller struct {
	store records.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store records.Store, log *slog.Logger) *Controller {
	return &Controller{store: store, log: log, now: time.Now}
}

// CreateMaster persists a new master and its initial flavours. IDs and
// date-added stamps are assigned here; the master's flavour refs are rebuilt
// from the flavours actually written.
func (c *Controller) CreateMaster(ctx context.Context, m *records.MasterRecord, flavours []*records.FlavourRecord) (*records.MasterRecord, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.DateAdded.IsZero() {
		m.DateAdded = c.now()
	}

	seen := make(map[records.SchemaName]bool, len(flavours))
	refs := make([]records.FlavourRef, 0, len(flavours))
	for _, f := range flavours {
		if seen[f.SchemaName] {
			return nil, fmt.Errorf("duplicate flavour channel %s for master %s", f.SchemaName, m.ID)
		}
		seen[f.SchemaName] = true

		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.MasterID = m.ID
		if err := c.store.InsertFlavour(ctx, f); err != nil {
			return nil, fmt.Errorf("insert flavour %s: %w", f.SchemaName, err)
		}
		refs = append(refs, records.FlavourRef{ID: f.ID, SchemaName: f.SchemaName})
	}
	m.FlavourRefs = refs

	if err := c.store.Insert(ctx, m); err != nil {
		if len(refs) > 0 {
			c.log.Error("master insert failed after flavours were written",
				"master_id", m.ID.String(), "flavours", len(refs), "error", err)
		}
		return nil, fmt.Errorf("insert master: %w", err)
	}
	return m, nil
}

// UpdateMaster persists changes to an existing master. The stored flavour
// refs are always re-attached: an update must never silently drop flavours,
// no matter what the caller left on the incoming record.
func (c *Controller) UpdateMaster(ctx context.Context, m *records.MasterRecord) error {
	existing, err := c.store.Get(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load master for update: %w", err)
	}
	m.FlavourRefs = existing.FlavourRefs
	if m.DateUpdated.IsZero() {
		m.DateUpdated = c.now()
	}
	if err := c.store.Update(ctx, m); err != nil {
		return fmt.Errorf("update master: %w", err)
	}
	return nil
}

// AddFlavour attaches a new channel flavour to an existing master. At most
// one flavour per channel: a second flavour on the same channel is rejected.
func (c *Controller) AddFlavour(ctx context.Context, masterID uuid.UUID, f *records.FlavourRecord) error {
	m, err := c.store.Get(ctx, masterID)
	if err != nil {
		return fmt.Errorf("load master for flavour: %w", err)
	}
	if m.HasFlavour(f.SchemaName) {
		return fmt.Errorf("master %s already has a %s flavour", masterID, f.SchemaName)
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.MasterID = masterID
	if err := c.store.InsertFlavour(ctx, f); err != nil {
		return fmt.Errorf("insert flavour: %w", err)
	}
	m.FlavourRefs = append(m.FlavourRefs, records.FlavourRef{ID: f.ID, SchemaName: f.SchemaName})
	if err := c.store.Update(ctx, m); err != nil {
		return fmt.Errorf("attach flavour ref: %w", err)
	}
	return nil
}

// Flavours loads every flavour the master references. Dangling refs are an
// invariant breach and surface as errors rather than being skipped.
func (c *Controller) Flavours(ctx context.Context, m *records.MasterRecord) ([]*records.FlavourRecord, error) {
	out := make([]*records.FlavourRecord, 0, len(m.FlavourRefs))
	for _, ref := range m.FlavourRefs {
		f, err := c.store.GetFlavour(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("load flavour %s: %w", ref.ID, err)
		}
		out = append(out, f)
	}
	return out, nil
}
