// Package nris imports environmental inspection rows from the NRIS EPD API.
// One inspection arrives as several rows sharing an assessment id, each
// contributing a piece of the outcome text; a row's transform therefore
// depends on every earlier row with the same id, and the feed demands
// strictly sequential processing.
package nris

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pubrec/internal/importer"
	"pubrec/internal/records"
	"pubrec/internal/records/controller"
	"pubrec/pkg/platform/sentinel"
	"pubrec/pkg/roles"
)

// Feed pulls the inspection batch from the NRIS EPD API.
type Feed struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewFeed(client *http.Client, baseURL, token string) *Feed {
	if client == nil {
		client = http.DefaultClient
	}
	return &Feed{client: client, baseURL: baseURL, token: token}
}

func (f *Feed) Name() string               { return "nris" }
func (f *Feed) SystemRef() string          { return records.SourceSystemNris }
func (f *Feed) Schema() records.SchemaName { return records.SchemaInspection }
func (f *Feed) Sequential() bool           { return true }

func (f *Feed) Fetch(ctx context.Context) ([]importer.Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/inspections", nil)
	if err != nil {
		return nil, fmt.Errorf("build nris request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch nris inspections: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: nris endpoint returned %d", importer.ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("nris endpoint returned %d", resp.StatusCode)
	}

	var raw []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode nris response: %w", err)
	}

	rows := make([]importer.Row, 0, len(raw))
	for _, item := range raw {
		row := make(importer.Row, len(item))
		for key, val := range item {
			row[key] = stringify(val)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers; assessment ids are integral.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

func staffRoles() roles.Set {
	return roles.NewSet(roles.Sysadmin, roles.Admin, roles.Editor)
}

// Handler converts nris rows into Inspection records. It accumulates
// observation text per assessment id across one run, so the record converges
// to the full outcome once the last row for an inspection is processed; the
// runner clears the accumulator via BeginRun so reruns start from nothing.
// Transform is not safe for concurrent use; the feed declares itself
// sequential and the runner honors that.
type Handler struct {
	store      records.Store
	controller *controller.Controller
	now        func() time.Time

	observations map[string][]string
}

func NewHandler(store records.Store, ctrl *controller.Controller) *Handler {
	return &Handler{
		store:        store,
		controller:   ctrl,
		now:          time.Now,
		observations: make(map[string][]string),
	}
}

// BeginRun discards observation text carried over from a previous run.
func (h *Handler) BeginRun() {
	h.observations = make(map[string][]string)
}

const dateLayout = "2006-01-02"

func (h *Handler) Transform(row importer.Row) (*records.MasterRecord, error) {
	assessmentID := row["assessment_id"]
	if assessmentID == "" {
		return nil, fmt.Errorf("row has no assessment_id")
	}

	if obs := row["observation"]; obs != "" {
		h.observations[assessmentID] = append(h.observations[assessmentID], obs)
	}

	rec := &records.MasterRecord{
		SchemaName:      records.SchemaInspection,
		SourceSystemRef: records.SourceSystemNris,
		SourceRefNrisID: assessmentID,
		IssuingAgency:   "Environmental Protection Division",
		Description:     row["inspection_type"],
		Location:        row["location"],
		OutcomeNotes:    strings.Join(h.observations[assessmentID], "\n"),
		Read:            staffRoles(),
		Write:           staffRoles(),
	}

	if raw := row["inspection_date"]; raw != "" {
		if t, err := time.Parse(dateLayout, raw); err == nil {
			rec.DateIssued = t
		}
	}
	return rec, nil
}

func (h *Handler) FindExisting(ctx context.Context, rec *records.MasterRecord) (*records.MasterRecord, error) {
	if rec.SourceRefNrisID == "" {
		return nil, nil
	}
	existing, err := h.store.FindByCorrelation(ctx, records.SchemaInspection, records.SourceSystemNris, rec.SourceRefNrisID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

// Create opens the inspection with a staff-only flavour: inspections go
// through editorial review before anyone publishes them.
func (h *Handler) Create(ctx context.Context, rec *records.MasterRecord) error {
	rec.AddedBy = records.SourceSystemNris
	rec.SourceDateAdded = h.now()

	flavour := &records.FlavourRecord{
		SchemaName:  records.SchemaInspectionBCMI,
		Description: rec.Description,
		Read:        staffRoles(),
		Write:       staffRoles(),
	}

	_, err := h.controller.CreateMaster(ctx, rec, []*records.FlavourRecord{flavour})
	return err
}

func (h *Handler) Update(ctx context.Context, existing, rec *records.MasterRecord) error {
	updated := *existing
	updated.DateIssued = rec.DateIssued
	updated.IssuingAgency = rec.IssuingAgency
	updated.Description = rec.Description
	updated.Location = rec.Location
	updated.OutcomeNotes = rec.OutcomeNotes
	updated.UpdatedBy = records.SourceSystemNris
	updated.SourceDateUpdated = h.now()
	return h.controller.UpdateMaster(ctx, &updated)
}
