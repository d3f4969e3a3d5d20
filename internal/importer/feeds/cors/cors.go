// Package cors imports contravention ticket rows from the CORS CSV extract.
// Rows are independent of each other, so the runner may process them in
// bounded concurrent groups.
package cors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"pubrec/internal/importer"
	"pubrec/internal/records"
	"pubrec/internal/records/controller"
	"pubrec/pkg/platform/sentinel"
	"pubrec/pkg/roles"
)

// Feed reads the CSV extract either from a token-protected HTTP endpoint or
// from a local file (operator re-runs of an already-downloaded extract).
type Feed struct {
	client *http.Client
	url    string
	token  string
	path   string
}

func NewHTTPFeed(client *http.Client, url, token string) *Feed {
	if client == nil {
		client = http.DefaultClient
	}
	return &Feed{client: client, url: url, token: token}
}

func NewFileFeed(path string) *Feed {
	return &Feed{path: path}
}

func (f *Feed) Name() string               { return "cors" }
func (f *Feed) SystemRef() string          { return records.SourceSystemCors }
func (f *Feed) Schema() records.SchemaName { return records.SchemaTicket }
func (f *Feed) Sequential() bool           { return false }

func (f *Feed) Fetch(ctx context.Context) ([]importer.Row, error) {
	if f.path != "" {
		file, err := os.Open(f.path)
		if err != nil {
			return nil, fmt.Errorf("open cors extract: %w", err)
		}
		defer file.Close()
		return parseCSV(file)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build cors request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cors extract: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: cors endpoint returned %d", importer.ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("cors endpoint returned %d", resp.StatusCode)
	}
	return parseCSV(resp.Body)
}

// parseCSV converts the header-led extract into rows keyed by column name.
func parseCSV(r io.Reader) ([]importer.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // short rows resolve to empty values, not errors

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read cors header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []importer.Row
	for {
		values, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read cors row: %w", err)
		}
		row := make(importer.Row, len(header))
		for i, col := range header {
			if i < len(values) {
				row[col] = strings.TrimSpace(values[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// staffRoles is the default visibility of a freshly imported master record:
// staff only, until the flavour (or a later publish) opens it up.
func staffRoles() roles.Set {
	return roles.NewSet(roles.Sysadmin, roles.Admin, roles.Editor)
}

// Handler converts cors rows into Ticket records. Tickets are published to
// the public channel immediately on create: the feed is a court-record
// extract whose policy requires disclosure without editorial review.
type Handler struct {
	store      records.Store
	controller *controller.Controller
	now        func() time.Time
}

func NewHandler(store records.Store, ctrl *controller.Controller) *Handler {
	return &Handler{store: store, controller: ctrl, now: time.Now}
}

// dateLayout is the extract's DD/MM/YYYY convention.
const dateLayout = "02/01/2006"

func (h *Handler) Transform(row importer.Row) (*records.MasterRecord, error) {
	correlationID := row["contravention_enforcement_id"]
	if correlationID == "" {
		return nil, fmt.Errorf("row has no contravention_enforcement_id")
	}

	rec := &records.MasterRecord{
		SchemaName:      records.SchemaTicket,
		SourceSystemRef: records.SourceSystemCors,
		SourceRefCorsID: correlationID,
		Legislation:     row["act_or_regulation_description"],
		IssuingAgency:   row["org_unit_name"],
		Description:     row["description_of_violation"],
		Location:        row["location_of_violation"],
		Read:            staffRoles(),
		Write:           staffRoles(),
	}

	// Unparseable dates resolve to the zero time rather than failing the
	// row; the extract is known to carry blanks and malformed values.
	if raw := row["ticket_date"]; raw != "" {
		if t, err := time.Parse(dateLayout, raw); err == nil {
			rec.DateIssued = t
		}
	}

	rec.IssuedTo = issuedTo(row)
	return rec, nil
}

// issuedTo builds the tagged sub-document. Company names are public alongside
// the ticket; individual names stay staff-only regardless of the record's own
// visibility.
func issuedTo(row importer.Row) *records.IssuedTo {
	if name := row["business_name"]; name != "" {
		return &records.IssuedTo{
			Type:        records.EntityCompany,
			CompanyName: name,
			Read:        staffRoles().Add(roles.Public),
			Write:       staffRoles(),
		}
	}
	return &records.IssuedTo{
		Type:      records.EntityIndividual,
		FirstName: row["first_name"],
		LastName:  row["last_name"],
		Read:      staffRoles(),
		Write:     staffRoles(),
	}
}

func (h *Handler) FindExisting(ctx context.Context, rec *records.MasterRecord) (*records.MasterRecord, error) {
	if rec.SourceRefCorsID == "" {
		return nil, nil
	}
	existing, err := h.store.FindByCorrelation(ctx, records.SchemaTicket, records.SourceSystemCors, rec.SourceRefCorsID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

func (h *Handler) Create(ctx context.Context, rec *records.MasterRecord) error {
	now := h.now()
	rec.AddedBy = records.SourceSystemCors
	rec.SourceDateAdded = now

	flavour := &records.FlavourRecord{
		SchemaName:    records.SchemaTicketBCMI,
		Description:   rec.Description,
		DatePublished: now,
		Read:          staffRoles().Add(roles.Public),
		Write:         staffRoles(),
	}

	_, err := h.controller.CreateMaster(ctx, rec, []*records.FlavourRecord{flavour})
	return err
}

// Update converges the stored record to the latest transform output. Only
// transform-produced fields move; curated tags, deletion state, and the
// added-by stamps stay as they are, and the controller re-attaches flavours.
func (h *Handler) Update(ctx context.Context, existing, rec *records.MasterRecord) error {
	updated := *existing
	updated.DateIssued = rec.DateIssued
	updated.Legislation = rec.Legislation
	updated.IssuingAgency = rec.IssuingAgency
	updated.Description = rec.Description
	updated.Location = rec.Location
	updated.IssuedTo = rec.IssuedTo
	updated.UpdatedBy = records.SourceSystemCors
	updated.SourceDateUpdated = h.now()
	return h.controller.UpdateMaster(ctx, &updated)
}
