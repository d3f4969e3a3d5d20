package records

import "strings"

// KeywordMatch reports whether the record satisfies a free-text query: every
// query term must occur in at least one field of the given subset. This
// mirrors the SQL store's keyword clause, an AND over terms of an OR over
// fields, so the two stores agree on which records a query returns.
func KeywordMatch(r *MasterRecord, keywords string, subset []string) bool {
	terms := strings.Fields(strings.ToLower(keywords))
	if len(terms) == 0 {
		return true
	}
	if len(subset) == 0 {
		subset = DefaultKeywordFields
	}
	for _, term := range terms {
		found := false
		for _, field := range subset {
			if strings.Contains(strings.ToLower(r.FieldString(field)), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// KeywordScore is the relevance of a matching record for a free-text query:
// the number of query term occurrences across the given field subset. Ranking
// only; whether a record matches at all is KeywordMatch's call.
func KeywordScore(r *MasterRecord, keywords string, subset []string) int {
	terms := strings.Fields(strings.ToLower(keywords))
	if len(terms) == 0 {
		return 0
	}
	if len(subset) == 0 {
		subset = DefaultKeywordFields
	}
	score := 0
	for _, field := range subset {
		haystack := strings.ToLower(r.FieldString(field))
		if haystack == "" {
			continue
		}
		for _, term := range terms {
			score += strings.Count(haystack, term)
		}
	}
	return score
}
