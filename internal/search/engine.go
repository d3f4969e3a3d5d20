package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pubrec/internal/platform/metrics"
	"pubrec/internal/records"
	"pubrec/pkg/roles"
)

// MaxPageSize caps every page regardless of what the caller requests, so an
// omitted or abusive pageSize can never produce an unbounded result set.
const MaxPageSize = 1000

// Meta carries aggregate information for one dataset group.
type Meta struct {
	SearchResultsTotal int `json:"searchResultsTotal"`
}

// DatasetResult is one response group: the visibility-filtered page for a
// single requested dataset.
type DatasetResult struct {
	Dataset       string           `json:"dataset"`
	SearchResults []map[string]any `json:"searchResults"`
	Meta          []Meta           `json:"meta,omitempty"`
}

// Engine runs the match, redact, sort, page, project pipeline against the
// record store. Redaction runs before pagination: documents the caller may
// not see never occupy page offsets.
type Engine struct {
	store   records.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(store records.Store, log *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		log:     log,
		metrics: m,
		tracer:  otel.Tracer("pubrec/search"),
	}
}

type scoredDoc struct {
	rec   *records.MasterRecord
	doc   map[string]any
	score int
}

// Search evaluates the query for every requested dataset under the caller's
// role set and returns one result group per dataset.
func (e *Engine) Search(ctx context.Context, q Query, caller roles.Set) ([]DatasetResult, error) {
	ctx, span := e.tracer.Start(ctx, "search.Search",
		trace.WithAttributes(attribute.Int("datasets", len(q.Datasets))))
	defer span.End()

	if e.metrics != nil {
		e.metrics.SearchRequests.Inc()
	}

	out := make([]DatasetResult, 0, len(q.Datasets))
	for _, dataset := range q.Datasets {
		group, err := e.searchDataset(ctx, dataset, q, caller)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", dataset, err)
		}
		out = append(out, group)
	}
	return out, nil
}

func (e *Engine) searchDataset(ctx context.Context, dataset records.SchemaName, q Query, caller roles.Set) (DatasetResult, error) {
	// Match stage: schema + field predicates, pushed to the store.
	recs, err := e.store.Find(ctx, q.filterFor(dataset))
	if err != nil {
		return DatasetResult{}, err
	}

	// Redact stage. The whole document tree is walked here; anything the
	// caller's roles don't intersect is pruned before it can influence
	// counts, offsets, or sort positions.
	survivors := make([]scoredDoc, 0, len(recs))
	for _, rec := range recs {
		doc := rec.Document()
		if q.Populate {
			if err := e.populateFlavours(ctx, rec, doc); err != nil {
				return DatasetResult{}, err
			}
		}
		redacted := Redact(doc, caller)
		if redacted == nil {
			continue
		}
		sd := scoredDoc{rec: rec, doc: redacted}
		if q.Keywords != "" {
			sd.score = records.KeywordScore(rec, q.Keywords, q.Subset)
		}
		survivors = append(survivors, sd)
	}

	// Sort stage. The relevance score is a derived field, materialized only
	// for ordering and projected away afterward unless explicitly requested.
	e.sortDocs(survivors, q)

	// The total is counted after full document build and redaction even when
	// the caller only wants the count. A cheaper id-and-tags projection would
	// do for counting, since survival depends only on the document's own read
	// set, but sharing the one pipeline keeps count and page consistent by
	// construction.
	total := len(survivors)

	// Page stage: 1-indexed pageNum arrives here already validated.
	pageSize := q.PageSize
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	start := (q.PageNum - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	page := survivors[start:end]

	// Project stage.
	results := make([]map[string]any, 0, len(page))
	for _, sd := range page {
		results = append(results, project(sd, q))
	}

	group := DatasetResult{Dataset: string(dataset), SearchResults: results}
	if q.Count {
		group.Meta = []Meta{{SearchResultsTotal: total}}
	}
	return group, nil
}

// populateFlavours expands the master's flavour refs into full flavour
// documents so the redaction walk can evaluate each channel view on its own
// tags. A flavour the caller may not see is pruned from the array.
func (e *Engine) populateFlavours(ctx context.Context, rec *records.MasterRecord, doc map[string]any) error {
	if len(rec.FlavourRefs) == 0 {
		return nil
	}
	expanded := make([]any, 0, len(rec.FlavourRefs))
	for _, ref := range rec.FlavourRefs {
		f, err := e.store.GetFlavour(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("populate flavour %s: %w", ref.ID, err)
		}
		expanded = append(expanded, f.Document())
	}
	doc["_flavourRecords"] = expanded
	return nil
}

func (e *Engine) sortDocs(docs []scoredDoc, q Query) {
	sortBy := q.SortBy
	if sortBy == "" {
		if q.Keywords == "" {
			return // no sort requested: keep store iteration order
		}
		sortBy = "-score"
	}

	desc := strings.HasPrefix(sortBy, "-")
	field := strings.TrimLeft(sortBy, "+-")

	if field == "score" {
		sort.SliceStable(docs, func(i, j int) bool {
			if desc {
				return docs[i].score > docs[j].score
			}
			return docs[i].score < docs[j].score
		})
		return
	}

	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].rec.FieldString(field), docs[j].rec.FieldString(field)
		if desc {
			return a > b
		}
		return a < b
	})
}

// defaultProjection is always returned; everything else must be requested.
var defaultProjection = map[string]bool{
	"_id":         true,
	"_schemaName": true,
	"read":        true,
	"write":       true,
}

func project(sd scoredDoc, q Query) map[string]any {
	keep := make(map[string]bool, len(defaultProjection)+len(q.Fields))
	for k := range defaultProjection {
		keep[k] = true
	}
	for _, f := range q.Fields {
		keep[f] = true
	}
	if q.Populate {
		keep["_flavourRecords"] = true
	}

	out := make(map[string]any, len(keep))
	for key, val := range sd.doc {
		if keep[key] {
			out[key] = val
		}
	}
	if keep["score"] && q.Keywords != "" {
		out["score"] = sd.score
	}
	return out
}
