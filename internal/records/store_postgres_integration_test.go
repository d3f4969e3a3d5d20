//go:build integration

package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pubrec/internal/records"
	"pubrec/pkg/platform/sentinel"
	"pubrec/pkg/roles"
	"pubrec/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *records.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = records.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "masters", "flavours")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newTicket(mutate func(*records.MasterRecord)) *records.MasterRecord {
	rec := &records.MasterRecord{
		ID:         uuid.New(),
		SchemaName: records.SchemaTicket,
		Read:       roles.NewSet(roles.Sysadmin, roles.Admin),
		Write:      roles.NewSet(roles.Sysadmin),
		DateAdded:  time.Now(),
	}
	if mutate != nil {
		mutate(rec)
	}
	s.Require().NoError(s.store.Insert(context.Background(), rec))
	return rec
}

func (s *PostgresStoreSuite) TestInsertGetRoundTrip() {
	ctx := context.Background()
	rec := s.newTicket(func(r *records.MasterRecord) {
		r.SourceSystemRef = records.SourceSystemCors
		r.SourceRefCorsID = "123"
		r.Legislation = "Environmental Management Act"
		r.Description = "Unauthorized discharge"
		r.DateIssued = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
		r.IssuedTo = &records.IssuedTo{
			Type:        records.EntityCompany,
			CompanyName: "Acme Industrial Ltd.",
			Read:        roles.NewSet(roles.Public, roles.Admin),
			Write:       roles.NewSet(roles.Admin),
		}
	})

	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(records.SchemaTicket, got.SchemaName)
	s.Equal("123", got.SourceRefCorsID)
	s.Equal("Environmental Management Act", got.Legislation)
	s.Equal([]string{"admin", "sysadmin"}, got.Read.Strings())
	s.True(got.DateIssued.Equal(rec.DateIssued))

	s.Require().NotNil(got.IssuedTo)
	s.Equal(records.EntityCompany, got.IssuedTo.Type)
	s.Equal("Acme Industrial Ltd.", got.IssuedTo.CompanyName)
	s.True(got.IssuedTo.Read.Contains(roles.Public))
}

func (s *PostgresStoreSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFindByCorrelation() {
	ctx := context.Background()
	rec := s.newTicket(func(r *records.MasterRecord) { r.SourceRefCorsID = "123" })
	s.newTicket(func(r *records.MasterRecord) { r.SourceRefCorsID = "456" })

	got, err := s.store.FindByCorrelation(ctx, records.SchemaTicket, records.SourceSystemCors, "123")
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)

	_, err = s.store.FindByCorrelation(ctx, records.SchemaOrder, records.SourceSystemCors, "123")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByCorrelation(ctx, records.SchemaTicket, records.SourceSystemNris, "123")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCorrelationUniqueness() {
	ctx := context.Background()
	s.newTicket(func(r *records.MasterRecord) { r.SourceRefCorsID = "123" })

	dup := &records.MasterRecord{
		ID:              uuid.New(),
		SchemaName:      records.SchemaTicket,
		Read:            roles.NewSet(roles.Admin),
		Write:           roles.NewSet(roles.Admin),
		SourceRefCorsID: "123",
		DateAdded:       time.Now(),
	}
	s.Error(s.store.Insert(ctx, dup))
}

func (s *PostgresStoreSuite) TestFindPredicates() {
	ctx := context.Background()
	s.newTicket(func(r *records.MasterRecord) {
		r.Location = "North"
		r.IssuingAgency = "AMD"
	})
	s.newTicket(func(r *records.MasterRecord) {
		r.Location = "South"
		r.IssuingAgency = "EPD"
	})

	out, err := s.store.Find(ctx, records.Filter{
		Schemas: []records.SchemaName{records.SchemaTicket},
		And:     map[string][]string{"issuingAgency": {"AMD"}},
	})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("North", out[0].Location)

	out, err = s.store.Find(ctx, records.Filter{
		Nor: map[string][]string{"location": {"North"}},
	})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("South", out[0].Location)
}

func (s *PostgresStoreSuite) TestFindKeywordsILike() {
	ctx := context.Background()
	s.newTicket(func(r *records.MasterRecord) { r.Description = "Diesel SPILL at dock" })
	s.newTicket(func(r *records.MasterRecord) { r.Description = "noise complaint" })

	out, err := s.store.Find(ctx, records.Filter{Keywords: "spill"})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Contains(out[0].Description, "SPILL")

	// Multi-term queries require every term to hit somewhere.
	out, err = s.store.Find(ctx, records.Filter{Keywords: "diesel noise"})
	s.Require().NoError(err)
	s.Empty(out)

	out, err = s.store.Find(ctx, records.Filter{Keywords: "diesel dock"})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Contains(out[0].Description, "Diesel")
}

func (s *PostgresStoreSuite) TestUpdatePersistsTagChanges() {
	ctx := context.Background()
	rec := s.newTicket(nil)

	rec.Read = rec.Read.Add(roles.Public)
	rec.IsDeleted = false
	rec.DateUpdated = time.Now()
	s.Require().NoError(s.store.Update(ctx, rec))

	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.True(got.Read.Contains(roles.Public))

	missing := *rec
	missing.ID = uuid.New()
	s.ErrorIs(s.store.Update(ctx, &missing), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFlavourLifecycle() {
	ctx := context.Background()
	rec := s.newTicket(nil)

	flavour := &records.FlavourRecord{
		ID:            uuid.New(),
		SchemaName:    records.SchemaTicketBCMI,
		MasterID:      rec.ID,
		Read:          roles.NewSet(roles.Public),
		Write:         roles.NewSet(roles.Admin),
		Description:   "channel view",
		DatePublished: time.Now(),
	}
	s.Require().NoError(s.store.InsertFlavour(ctx, flavour))

	rec.FlavourRefs = []records.FlavourRef{{ID: flavour.ID, SchemaName: flavour.SchemaName}}
	s.Require().NoError(s.store.Update(ctx, rec))

	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(got.FlavourRefs, 1)
	s.Equal(flavour.ID, got.FlavourRefs[0].ID)

	f, err := s.store.GetFlavour(ctx, flavour.ID)
	s.Require().NoError(err)
	s.True(f.Read.Contains(roles.Public))

	f.Read = f.Read.Remove(roles.Public)
	s.Require().NoError(s.store.UpdateFlavour(ctx, f))
	f, err = s.store.GetFlavour(ctx, flavour.ID)
	s.Require().NoError(err)
	s.False(f.Read.Contains(roles.Public))

	// One flavour per channel per master.
	dup := &records.FlavourRecord{
		ID:         uuid.New(),
		SchemaName: records.SchemaTicketBCMI,
		MasterID:   rec.ID,
		Read:       roles.NewSet(roles.Admin),
		Write:      roles.NewSet(roles.Admin),
	}
	s.Error(s.store.InsertFlavour(ctx, dup))
}
