package controller

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubrec/internal/records"
	"pubrec/pkg/roles"
)

func newController(t *testing.T) (*Controller, *records.MemoryStore) {
	t.Helper()
	store := records.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, log), store
}

func ticket() *records.MasterRecord {
	return &records.MasterRecord{
		SchemaName: records.SchemaTicket,
		Read:       roles.NewSet(roles.Admin),
		Write:      roles.NewSet(roles.Admin),
	}
}

func TestCreateMaster_AssignsIDsAndRefs(t *testing.T) {
	ctx := context.Background()
	c, store := newController(t)

	flavour := &records.FlavourRecord{SchemaName: records.SchemaTicketBCMI}
	m, err := c.CreateMaster(ctx, ticket(), []*records.FlavourRecord{flavour})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.False(t, m.DateAdded.IsZero())
	require.Len(t, m.FlavourRefs, 1)
	assert.Equal(t, flavour.ID, m.FlavourRefs[0].ID)
	assert.Equal(t, m.ID, flavour.MasterID)

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, stored.FlavourRefs, 1)
	_, err = store.GetFlavour(ctx, flavour.ID)
	require.NoError(t, err)
}

func TestCreateMaster_RejectsDuplicateChannel(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)

	_, err := c.CreateMaster(ctx, ticket(), []*records.FlavourRecord{
		{SchemaName: records.SchemaTicketBCMI},
		{SchemaName: records.SchemaTicketBCMI},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate flavour channel")
}

func TestUpdateMaster_ReattachesStoredFlavourRefs(t *testing.T) {
	ctx := context.Background()
	c, store := newController(t)

	m, err := c.CreateMaster(ctx, ticket(), []*records.FlavourRecord{
		{SchemaName: records.SchemaTicketBCMI},
	})
	require.NoError(t, err)

	// Callers routinely update from transform output that carries no refs;
	// the stored refs must survive regardless.
	update := *m
	update.FlavourRefs = nil
	update.Description = "amended"
	require.NoError(t, c.UpdateMaster(ctx, &update))

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "amended", stored.Description)
	require.Len(t, stored.FlavourRefs, 1)
	assert.Equal(t, records.SchemaTicketBCMI, stored.FlavourRefs[0].SchemaName)
}

func TestUpdateMaster_UnknownRecord(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)

	rec := ticket()
	rec.ID = uuid.New()
	require.Error(t, c.UpdateMaster(ctx, rec))
}

func TestAddFlavour_OnePerChannel(t *testing.T) {
	ctx := context.Background()
	c, store := newController(t)

	m, err := c.CreateMaster(ctx, ticket(), nil)
	require.NoError(t, err)

	require.NoError(t, c.AddFlavour(ctx, m.ID, &records.FlavourRecord{SchemaName: records.SchemaTicketBCMI}))
	err = c.AddFlavour(ctx, m.ID, &records.FlavourRecord{SchemaName: records.SchemaTicketBCMI})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has")

	require.NoError(t, c.AddFlavour(ctx, m.ID, &records.FlavourRecord{SchemaName: records.SchemaTicketLNG}))

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, stored.FlavourRefs, 2)
}

func TestFlavours_SurfacesDanglingRefs(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t)

	m, err := c.CreateMaster(ctx, ticket(), []*records.FlavourRecord{
		{SchemaName: records.SchemaTicketBCMI},
	})
	require.NoError(t, err)

	flavours, err := c.Flavours(ctx, m)
	require.NoError(t, err)
	assert.Len(t, flavours, 1)

	m.FlavourRefs = append(m.FlavourRefs, records.FlavourRef{ID: uuid.New(), SchemaName: records.SchemaTicketLNG})
	_, err = c.Flavours(ctx, m)
	require.Error(t, err)
}
