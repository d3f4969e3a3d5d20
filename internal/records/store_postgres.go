package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"pubrec/pkg/platform/sentinel"
	"pubrec/pkg/roles"
)

// PostgresStore persists records in PostgreSQL. Tag arrays live in text[]
// columns so whole-record visibility can be prefiltered with the && overlap
// operator; the issued-to sub-document and flavour refs are JSONB.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const masterColumns = `id, schema_name, read_roles, write_roles, is_deleted, source_system_ref,
	source_ref_cors_id, source_ref_nris_id, date_issued, legislation, issuing_agency,
	issued_to, description, location, outcome_notes, flavour_refs,
	added_by, date_added, source_date_added, updated_by, date_updated, source_date_updated`

// predicateColumns maps document field keys the search surface accepts onto
// SQL expressions. Keys absent here cannot be filtered server-side.
var predicateColumns = map[string]string{
	"_schemaName":          "schema_name",
	"sourceSystemRef":      "source_system_ref",
	"_sourceRefCorsId":     "source_ref_cors_id",
	"_sourceRefNrisId":     "source_ref_nris_id",
	"legislation":          "legislation",
	"issuingAgency":        "issuing_agency",
	"description":          "description",
	"location":             "location",
	"outcomeNotes":         "outcome_notes",
	"addedBy":              "added_by",
	"updatedBy":            "updated_by",
	"issuedTo.type":        "issued_to->>'type'",
	"issuedTo.companyName": "issued_to->>'companyName'",
	"issuedTo.lastName":    "issued_to->>'lastName'",
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*MasterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM masters WHERE id = $1`, masterColumns), id)
	return scanMaster(row)
}

func (s *PostgresStore) FindByCorrelation(ctx context.Context, schema SchemaName, sourceSystemRef, correlationID string) (*MasterRecord, error) {
	if correlationID == "" {
		return nil, sentinel.ErrNotFound
	}
	col := ""
	switch sourceSystemRef {
	case SourceSystemCors:
		col = "source_ref_cors_id"
	case SourceSystemNris:
		col = "source_ref_nris_id"
	default:
		return nil, sentinel.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM masters WHERE schema_name = $1 AND %s = $2`, masterColumns, col),
		string(schema), correlationID)
	return scanMaster(row)
}

func (s *PostgresStore) Find(ctx context.Context, f Filter) ([]*MasterRecord, error) {
	q := s.sb.Select(masterColumns).From("masters")

	if f.ID != nil {
		q = q.Where(sq.Eq{"id": *f.ID})
	}
	if len(f.Schemas) > 0 {
		names := make([]string, len(f.Schemas))
		for i, sc := range f.Schemas {
			names[i] = string(sc)
		}
		q = q.Where(sq.Eq{"schema_name": names})
	}
	for key, vals := range f.And {
		if col, ok := predicateColumns[key]; ok {
			q = q.Where(sq.Eq{col: vals})
		}
	}
	for key, vals := range f.In {
		if col, ok := predicateColumns[key]; ok {
			q = q.Where(sq.Eq{col: vals})
		}
	}
	for key, vals := range f.Nor {
		if col, ok := predicateColumns[key]; ok {
			q = q.Where(sq.NotEq{col: vals})
		}
	}
	if len(f.Or) > 0 {
		or := sq.Or{}
		for key, vals := range f.Or {
			if col, ok := predicateColumns[key]; ok {
				or = append(or, sq.Eq{col: vals})
			}
		}
		if len(or) > 0 {
			q = q.Where(or)
		}
	}
	if f.Keywords != "" {
		q = q.Where(keywordClause(f.Keywords, f.Subset))
	}

	// Stable iteration order; the search engine's paging depends on it.
	q = q.OrderBy("date_added", "id")

	sqlText, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("find masters: %w", err)
	}
	defer rows.Close()

	var out []*MasterRecord
	for rows.Next() {
		r, err := scanMaster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate masters: %w", err)
	}
	return out, nil
}

// keywordClause matches when every term appears in at least one subset field.
func keywordClause(keywords string, subset []string) sq.Sqlizer {
	if len(subset) == 0 {
		subset = DefaultKeywordFields
	}
	and := sq.And{}
	for _, term := range strings.Fields(keywords) {
		or := sq.Or{}
		for _, field := range subset {
			col, ok := predicateColumns[field]
			if !ok {
				continue
			}
			or = append(or, sq.ILike{col: "%" + term + "%"})
		}
		if len(or) > 0 {
			and = append(and, or)
		}
	}
	return and
}

func (s *PostgresStore) Insert(ctx context.Context, r *MasterRecord) error {
	issuedTo, flavourRefs, err := marshalMasterJSON(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO masters (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, masterColumns),
		r.ID, string(r.SchemaName),
		pq.StringArray(r.Read.Strings()), pq.StringArray(r.Write.Strings()),
		r.IsDeleted, r.SourceSystemRef, r.SourceRefCorsID, r.SourceRefNrisID,
		nullTime(r.DateIssued), r.Legislation, r.IssuingAgency,
		issuedTo, r.Description, r.Location, r.OutcomeNotes, flavourRefs,
		r.AddedBy, nullTime(r.DateAdded), nullTime(r.SourceDateAdded),
		r.UpdatedBy, nullTime(r.DateUpdated), nullTime(r.SourceDateUpdated),
	)
	if err != nil {
		return fmt.Errorf("insert master: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *MasterRecord) error {
	issuedTo, flavourRefs, err := marshalMasterJSON(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE masters SET
			read_roles = $2, write_roles = $3, is_deleted = $4, source_system_ref = $5,
			source_ref_cors_id = $6, source_ref_nris_id = $7, date_issued = $8,
			legislation = $9, issuing_agency = $10, issued_to = $11, description = $12,
			location = $13, outcome_notes = $14, flavour_refs = $15,
			updated_by = $16, date_updated = $17, source_date_updated = $18
		WHERE id = $1
	`,
		r.ID,
		pq.StringArray(r.Read.Strings()), pq.StringArray(r.Write.Strings()),
		r.IsDeleted, r.SourceSystemRef, r.SourceRefCorsID, r.SourceRefNrisID,
		nullTime(r.DateIssued), r.Legislation, r.IssuingAgency,
		issuedTo, r.Description, r.Location, r.OutcomeNotes, flavourRefs,
		r.UpdatedBy, nullTime(r.DateUpdated), nullTime(r.SourceDateUpdated),
	)
	if err != nil {
		return fmt.Errorf("update master: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update master rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetFlavour(ctx context.Context, id uuid.UUID) (*FlavourRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schema_name, master_id, read_roles, write_roles, description, date_published
		FROM flavours WHERE id = $1
	`, id)

	var f FlavourRecord
	var schema string
	var read, write pq.StringArray
	var published sql.NullTime
	if err := row.Scan(&f.ID, &schema, &f.MasterID, &read, &write, &f.Description, &published); err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get flavour: %w", err)
	}
	f.SchemaName = SchemaName(schema)
	f.Read = rolesFromArray(read)
	f.Write = rolesFromArray(write)
	if published.Valid {
		f.DatePublished = published.Time
	}
	return &f, nil
}

func (s *PostgresStore) InsertFlavour(ctx context.Context, f *FlavourRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flavours (id, schema_name, master_id, read_roles, write_roles, description, date_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		f.ID, string(f.SchemaName), f.MasterID,
		pq.StringArray(f.Read.Strings()), pq.StringArray(f.Write.Strings()),
		f.Description, nullTime(f.DatePublished),
	)
	if err != nil {
		return fmt.Errorf("insert flavour: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateFlavour(ctx context.Context, f *FlavourRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE flavours SET read_roles = $2, write_roles = $3, description = $4, date_published = $5
		WHERE id = $1
	`,
		f.ID,
		pq.StringArray(f.Read.Strings()), pq.StringArray(f.Write.Strings()),
		f.Description, nullTime(f.DatePublished),
	)
	if err != nil {
		return fmt.Errorf("update flavour: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update flavour rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type issuedToJSON struct {
	Type        string   `json:"type"`
	CompanyName string   `json:"companyName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Read        []string `json:"read"`
	Write       []string `json:"write"`
}

type flavourRefJSON struct {
	ID         string `json:"_id"`
	SchemaName string `json:"_schemaName"`
}

func marshalMasterJSON(r *MasterRecord) (issuedTo, flavourRefs []byte, err error) {
	if r.IssuedTo != nil {
		issuedTo, err = json.Marshal(issuedToJSON{
			Type:        string(r.IssuedTo.Type),
			CompanyName: r.IssuedTo.CompanyName,
			FirstName:   r.IssuedTo.FirstName,
			LastName:    r.IssuedTo.LastName,
			Read:        r.IssuedTo.Read.Strings(),
			Write:       r.IssuedTo.Write.Strings(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("marshal issued_to: %w", err)
		}
	}
	refs := make([]flavourRefJSON, 0, len(r.FlavourRefs))
	for _, fr := range r.FlavourRefs {
		refs = append(refs, flavourRefJSON{ID: fr.ID.String(), SchemaName: string(fr.SchemaName)})
	}
	flavourRefs, err = json.Marshal(refs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal flavour_refs: %w", err)
	}
	return issuedTo, flavourRefs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaster(row rowScanner) (*MasterRecord, error) {
	var r MasterRecord
	var schema string
	var read, write pq.StringArray
	var issuedTo, flavourRefs []byte
	var dateIssued, dateAdded, sourceDateAdded, dateUpdated, sourceDateUpdated sql.NullTime

	err := row.Scan(
		&r.ID, &schema, &read, &write, &r.IsDeleted, &r.SourceSystemRef,
		&r.SourceRefCorsID, &r.SourceRefNrisID, &dateIssued, &r.Legislation, &r.IssuingAgency,
		&issuedTo, &r.Description, &r.Location, &r.OutcomeNotes, &flavourRefs,
		&r.AddedBy, &dateAdded, &sourceDateAdded, &r.UpdatedBy, &dateUpdated, &sourceDateUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan master: %w", err)
	}

	r.SchemaName = SchemaName(schema)
	r.Read = rolesFromArray(read)
	r.Write = rolesFromArray(write)
	r.DateIssued = timeOrZero(dateIssued)
	r.DateAdded = timeOrZero(dateAdded)
	r.SourceDateAdded = timeOrZero(sourceDateAdded)
	r.DateUpdated = timeOrZero(dateUpdated)
	r.SourceDateUpdated = timeOrZero(sourceDateUpdated)

	if len(issuedTo) > 0 {
		var it issuedToJSON
		if err := json.Unmarshal(issuedTo, &it); err != nil {
			return nil, fmt.Errorf("unmarshal issued_to: %w", err)
		}
		r.IssuedTo = &IssuedTo{
			Type:        EntityType(it.Type),
			CompanyName: it.CompanyName,
			FirstName:   it.FirstName,
			LastName:    it.LastName,
			Read:        rolesFromStrings(it.Read),
			Write:       rolesFromStrings(it.Write),
		}
	}
	if len(flavourRefs) > 0 {
		var refs []flavourRefJSON
		if err := json.Unmarshal(flavourRefs, &refs); err != nil {
			return nil, fmt.Errorf("unmarshal flavour_refs: %w", err)
		}
		for _, ref := range refs {
			id, err := uuid.Parse(ref.ID)
			if err != nil {
				return nil, fmt.Errorf("parse flavour ref id: %w", err)
			}
			r.FlavourRefs = append(r.FlavourRefs, FlavourRef{ID: id, SchemaName: SchemaName(ref.SchemaName)})
		}
	}
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOrZero(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}

func rolesFromArray(a pq.StringArray) roles.Set {
	return roles.FromStrings([]string(a))
}

func rolesFromStrings(ss []string) roles.Set {
	return roles.FromStrings(ss)
}
