package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubrec/pkg/roles"
)

func TestRedact_EmptyReadSetVisibleToNobody(t *testing.T) {
	doc := map[string]any{
		"_id":  "abc",
		"read": []string{},
	}

	assert.Nil(t, Redact(doc, roles.NewSet(roles.Sysadmin)))
	assert.Nil(t, Redact(doc, roles.Anonymous()))
}

func TestRedact_RequiresIntersection(t *testing.T) {
	doc := map[string]any{
		"_id":         "abc",
		"read":        []string{"sysadmin", "admin"},
		"description": "unpaid fine",
	}

	assert.Nil(t, Redact(doc, roles.Anonymous()))
	assert.Nil(t, Redact(doc, roles.NewSet(roles.Viewer)))

	out := Redact(doc, roles.NewSet(roles.Admin, roles.Viewer))
	require.NotNil(t, out)
	assert.Equal(t, "unpaid fine", out["description"])
}

func TestRedact_PrunesHiddenSubDocument(t *testing.T) {
	doc := map[string]any{
		"_id":  "abc",
		"read": []string{"public"},
		"issuedTo": map[string]any{
			"read":     []string{"sysadmin", "admin", "editor"},
			"lastName": "Smith",
		},
	}

	out := Redact(doc, roles.Anonymous())
	require.NotNil(t, out)
	assert.NotContains(t, out, "issuedTo")

	out = Redact(doc, roles.NewSet(roles.Editor))
	require.NotNil(t, out)
	require.Contains(t, out, "issuedTo")
	issuedTo := out["issuedTo"].(map[string]any)
	assert.Equal(t, "Smith", issuedTo["lastName"])
}

func TestRedact_FiltersArraysElementwise(t *testing.T) {
	doc := map[string]any{
		"_id":  "abc",
		"read": []string{"public"},
		"_flavourRecords": []any{
			map[string]any{"_id": "f1", "read": []any{"public"}},
			map[string]any{"_id": "f2", "read": []any{"sysadmin"}},
		},
	}

	out := Redact(doc, roles.Anonymous())
	require.NotNil(t, out)
	flavours := out["_flavourRecords"].([]any)
	require.Len(t, flavours, 1)
	assert.Equal(t, "f1", flavours[0].(map[string]any)["_id"])
}

func TestRedact_NonSecurableNodesPassThrough(t *testing.T) {
	// No "read" key anywhere: nothing is securable, nothing is pruned.
	doc := map[string]any{
		"meta": map[string]any{"total": 3},
	}
	out := Redact(doc, roles.NewSet())
	require.NotNil(t, out)
	assert.Equal(t, 3, out["meta"].(map[string]any)["total"])
}

func TestRedact_DoesNotModifyInput(t *testing.T) {
	doc := map[string]any{
		"_id":  "abc",
		"read": []string{"public"},
		"issuedTo": map[string]any{
			"read":     []string{"sysadmin"},
			"lastName": "Smith",
		},
	}

	_ = Redact(doc, roles.Anonymous())

	require.Contains(t, doc, "issuedTo")
	assert.Equal(t, "Smith", doc["issuedTo"].(map[string]any)["lastName"])
}
