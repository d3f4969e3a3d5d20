package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"pubrec/internal/records"
	dErrors "pubrec/pkg/domain-errors"
)

// Query is one parsed search request. Datasets each produce their own result
// group in the response; everything else applies to every group.
type Query struct {
	Datasets []records.SchemaName
	ID       *uuid.UUID

	Keywords string
	Subset   []string

	And map[string][]string
	Or  map[string][]string
	Nor map[string][]string
	In  map[string][]string

	// Fields to project beyond the default set (_id, _schemaName, tags).
	Fields []string

	// SortBy is "+field" or "-field"; "score" sorts by keyword relevance.
	// No secondary sort key is defined: ties keep store iteration order.
	SortBy string

	// PageNum is 1-indexed at the HTTP surface.
	PageNum  int
	PageSize int

	Count    bool
	Populate bool
}

// ParseQuery builds a Query from the search endpoint's URL parameters.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{
		And:      map[string][]string{},
		Or:       map[string][]string{},
		Nor:      map[string][]string{},
		In:       map[string][]string{},
		PageNum:  1,
		PageSize: 25,
	}

	for _, ds := range splitCSV(values["dataset"]) {
		q.Datasets = append(q.Datasets, records.SchemaName(ds))
	}
	if len(q.Datasets) == 0 {
		return Query{}, dErrors.New(dErrors.CodeBadRequest, "dataset is required")
	}
	for _, ds := range q.Datasets {
		if !records.IsMasterSchema(ds) {
			return Query{}, dErrors.New(dErrors.CodeBadRequest, "unknown dataset: "+string(ds))
		}
	}

	if raw := values.Get("_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Query{}, dErrors.New(dErrors.CodeBadRequest, "invalid _id")
		}
		q.ID = &id
	}

	q.Keywords = values.Get("keywords")
	q.Subset = splitCSV(values["subset"])
	q.Fields = splitCSV(values["fields"])
	q.SortBy = values.Get("sortBy")
	q.Count = values.Get("count") == "true"
	q.Populate = values.Get("populate") == "true"

	if raw := values.Get("pageNum"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Query{}, dErrors.New(dErrors.CodeBadRequest, "pageNum must be a positive integer")
		}
		q.PageNum = n
	}
	if raw := values.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Query{}, dErrors.New(dErrors.CodeBadRequest, "pageSize must be a positive integer")
		}
		q.PageSize = n
	}

	for key, vals := range values {
		group, field, ok := predicateGroup(key)
		if !ok {
			continue
		}
		parsed := splitCSV(vals)
		if len(parsed) == 0 {
			continue
		}
		switch group {
		case "and":
			q.And[field] = parsed
		case "or":
			q.Or[field] = parsed
		case "nor":
			q.Nor[field] = parsed
		case "_in":
			q.In[field] = parsed
		}
	}

	return q, nil
}

// predicateGroup recognizes and[field], or[field], nor[field], _in[field].
func predicateGroup(key string) (group, field string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open < 1 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	group = key[:open]
	field = key[open+1 : len(key)-1]
	if field == "" {
		return "", "", false
	}
	switch group {
	case "and", "or", "nor", "_in":
		return group, field, true
	}
	return "", "", false
}

func splitCSV(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (q Query) filterFor(dataset records.SchemaName) records.Filter {
	return records.Filter{
		Schemas:  []records.SchemaName{dataset},
		ID:       q.ID,
		And:      q.And,
		Or:       q.Or,
		Nor:      q.Nor,
		In:       q.In,
		Keywords: q.Keywords,
		Subset:   q.Subset,
	}
}
