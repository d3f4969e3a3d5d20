package records

import (
	"context"

	"github.com/google/uuid"
)

// Filter is the match stage of a search: schema restriction plus field
// predicates. Predicate groups follow the search surface: And entries must all
// hold, Or entries need one match per key, Nor entries must all miss, In is an
// equality-against-any-value test. All groups combine with AND.
type Filter struct {
	Schemas []SchemaName
	ID      *uuid.UUID

	And map[string][]string
	Or  map[string][]string
	Nor map[string][]string
	In  map[string][]string

	// Keywords free-text matches against Subset fields (DefaultKeywordFields
	// when empty), case insensitive.
	Keywords string
	Subset   []string
}

// DefaultKeywordFields are the fields free-text search covers unless the
// caller restricts the subset.
var DefaultKeywordFields = []string{"description", "location", "legislation", "issuingAgency"}

// Store persists master and flavour records. Implementations must treat the
// correlation-id lookup as the idempotency key for feed imports: one master
// per (schema, feed, correlation id).
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*MasterRecord, error)
	FindByCorrelation(ctx context.Context, schema SchemaName, sourceSystemRef, correlationID string) (*MasterRecord, error)
	Find(ctx context.Context, f Filter) ([]*MasterRecord, error)
	Insert(ctx context.Context, r *MasterRecord) error
	Update(ctx context.Context, r *MasterRecord) error

	GetFlavour(ctx context.Context, id uuid.UUID) (*FlavourRecord, error)
	InsertFlavour(ctx context.Context, f *FlavourRecord) error
	UpdateFlavour(ctx context.Context, f *FlavourRecord) error
}
