package records

import (
	"time"

	"github.com/google/uuid"

	"pubrec/pkg/roles"
)

// SchemaName discriminates record subtypes. Master schemas describe the
// regulatory action; flavour schemas name the disclosure channel a view is
// published to.
type SchemaName string

// Master record schemas.
const (
	SchemaOrder      SchemaName = "Order"
	SchemaInspection SchemaName = "Inspection"
	SchemaPermit     SchemaName = "Permit"
	SchemaTicket     SchemaName = "Ticket"
)

// Flavour (channel) schemas. One flavour per (master, channel) pair.
const (
	SchemaTicketLNG      SchemaName = "TicketLNG"
	SchemaTicketBCMI     SchemaName = "TicketBCMI"
	SchemaInspectionLNG  SchemaName = "InspectionLNG"
	SchemaInspectionBCMI SchemaName = "InspectionBCMI"
	SchemaOrderLNG       SchemaName = "OrderLNG"
	SchemaPermitBCMI     SchemaName = "PermitBCMI"
)

// MasterSchemas is the fixed set of master record subtypes.
var MasterSchemas = []SchemaName{SchemaOrder, SchemaInspection, SchemaPermit, SchemaTicket}

// IsMasterSchema reports whether s names a master record subtype.
func IsMasterSchema(s SchemaName) bool {
	for _, m := range MasterSchemas {
		if m == s {
			return true
		}
	}
	return false
}

// EntityType distinguishes who a record was issued to.
type EntityType string

const (
	EntityCompany    EntityType = "Company"
	EntityIndividual EntityType = "Individual"
)

// IssuedTo identifies the entity a regulatory action was issued against. It
// carries its own tag pair: individual names are routinely more restricted
// than the record that names them, and redaction treats this sub-document by
// the same intersection rule as a whole record.
type IssuedTo struct {
	Type        EntityType `json:"type"`
	CompanyName string     `json:"companyName"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Read        roles.Set  `json:"-"`
	Write       roles.Set  `json:"-"`
}

// FlavourRef is a master's pointer to one of its flavour records.
type FlavourRef struct {
	ID         uuid.UUID  `json:"_id"`
	SchemaName SchemaName `json:"_schemaName"`
}

// MasterRecord is the canonical stored entity for one regulatory action.
type MasterRecord struct {
	ID         uuid.UUID
	SchemaName SchemaName

	Read  roles.Set
	Write roles.Set

	IsDeleted       bool
	SourceSystemRef string

	// Per-feed external correlation ids. For a given feed and schema at most
	// one master exists per distinct id; the reconciliation pipeline keys
	// create-vs-update decisions on these.
	SourceRefCorsID string
	SourceRefNrisID string

	DateIssued    time.Time
	Legislation   string
	IssuingAgency string
	IssuedTo      *IssuedTo
	Description   string
	Location      string
	OutcomeNotes  string

	FlavourRefs []FlavourRef

	AddedBy         string
	DateAdded       time.Time
	SourceDateAdded time.Time

	UpdatedBy         string
	DateUpdated       time.Time
	SourceDateUpdated time.Time
}

// FlavourRecord is a channel-scoped disclosure view of a master record. Its
// visibility is independent of its master's, conventionally narrower.
type FlavourRecord struct {
	ID         uuid.UUID
	SchemaName SchemaName
	MasterID   uuid.UUID

	Read  roles.Set
	Write roles.Set

	Description   string
	DatePublished time.Time
}

// CorrelationID returns the record's correlation id for the given feed system
// ref, empty when the feed is unknown or the id was never stamped.
func (r *MasterRecord) CorrelationID(sourceSystemRef string) string {
	switch sourceSystemRef {
	case SourceSystemCors:
		return r.SourceRefCorsID
	case SourceSystemNris:
		return r.SourceRefNrisID
	}
	return ""
}

// Known feed system refs.
const (
	SourceSystemCors = "cors-csv"
	SourceSystemNris = "nris-epd"
)

// HasFlavour reports whether the master already references a flavour on the
// given channel schema.
func (r *MasterRecord) HasFlavour(channel SchemaName) bool {
	for _, ref := range r.FlavourRefs {
		if ref.SchemaName == channel {
			return true
		}
	}
	return false
}
