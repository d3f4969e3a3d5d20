package records

import (
	"time"
)

// Document renders the record as the generic nested-map shape the search
// engine's projection and redaction stages operate on. Every level that is
// independently securable carries its own "read"/"write" arrays; the redaction
// walk keys off those without knowing the concrete record type.
func (r *MasterRecord) Document() map[string]any {
	doc := map[string]any{
		"_id":             r.ID.String(),
		"_schemaName":     string(r.SchemaName),
		"read":            r.Read.Strings(),
		"write":           r.Write.Strings(),
		"isDeleted":       r.IsDeleted,
		"sourceSystemRef": r.SourceSystemRef,
		"legislation":     r.Legislation,
		"issuingAgency":   r.IssuingAgency,
		"description":     r.Description,
		"location":        r.Location,
		"outcomeNotes":    r.OutcomeNotes,
		"addedBy":         r.AddedBy,
		"updatedBy":       r.UpdatedBy,
	}
	if r.SourceRefCorsID != "" {
		doc["_sourceRefCorsId"] = r.SourceRefCorsID
	}
	if r.SourceRefNrisID != "" {
		doc["_sourceRefNrisId"] = r.SourceRefNrisID
	}
	putDate(doc, "dateIssued", r.DateIssued)
	putDate(doc, "dateAdded", r.DateAdded)
	putDate(doc, "sourceDateAdded", r.SourceDateAdded)
	putDate(doc, "dateUpdated", r.DateUpdated)
	putDate(doc, "sourceDateUpdated", r.SourceDateUpdated)

	if r.IssuedTo != nil {
		doc["issuedTo"] = map[string]any{
			"type":        string(r.IssuedTo.Type),
			"companyName": r.IssuedTo.CompanyName,
			"firstName":   r.IssuedTo.FirstName,
			"lastName":    r.IssuedTo.LastName,
			"read":        r.IssuedTo.Read.Strings(),
			"write":       r.IssuedTo.Write.Strings(),
		}
	}

	if len(r.FlavourRefs) > 0 {
		refs := make([]any, 0, len(r.FlavourRefs))
		for _, fr := range r.FlavourRefs {
			refs = append(refs, map[string]any{
				"_id":         fr.ID.String(),
				"_schemaName": string(fr.SchemaName),
			})
		}
		doc["_flavourRecords"] = refs
	}
	return doc
}

// Document renders the flavour for populated search responses.
func (f *FlavourRecord) Document() map[string]any {
	doc := map[string]any{
		"_id":         f.ID.String(),
		"_schemaName": string(f.SchemaName),
		"_master":     f.MasterID.String(),
		"read":        f.Read.Strings(),
		"write":       f.Write.Strings(),
		"description": f.Description,
	}
	putDate(doc, "datePublished", f.DatePublished)
	return doc
}

func putDate(doc map[string]any, key string, t time.Time) {
	if t.IsZero() {
		return
	}
	doc[key] = t.UTC().Format(time.RFC3339)
}

// FieldString returns the record's value for a document field key as a string,
// for predicate matching and sorting. Dates render as RFC 3339, which sorts
// lexicographically in time order. Unknown keys return "".
func (r *MasterRecord) FieldString(key string) string {
	switch key {
	case "_id":
		return r.ID.String()
	case "_schemaName":
		return string(r.SchemaName)
	case "sourceSystemRef":
		return r.SourceSystemRef
	case "_sourceRefCorsId":
		return r.SourceRefCorsID
	case "_sourceRefNrisId":
		return r.SourceRefNrisID
	case "legislation":
		return r.Legislation
	case "issuingAgency":
		return r.IssuingAgency
	case "description":
		return r.Description
	case "location":
		return r.Location
	case "outcomeNotes":
		return r.OutcomeNotes
	case "addedBy":
		return r.AddedBy
	case "updatedBy":
		return r.UpdatedBy
	case "dateIssued":
		return formatDate(r.DateIssued)
	case "dateAdded":
		return formatDate(r.DateAdded)
	case "dateUpdated":
		return formatDate(r.DateUpdated)
	case "issuedTo.type":
		if r.IssuedTo != nil {
			return string(r.IssuedTo.Type)
		}
	case "issuedTo.companyName":
		if r.IssuedTo != nil {
			return r.IssuedTo.CompanyName
		}
	case "issuedTo.lastName":
		if r.IssuedTo != nil {
			return r.IssuedTo.LastName
		}
	}
	return ""
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
