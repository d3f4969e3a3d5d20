package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	reg := Registration{Feed: &stubFeed{name: "cors"}, Handler: &stubHandler{}}
	require.NoError(t, registry.Register(reg))

	got, ok := registry.Lookup("cors")
	require.True(t, ok)
	assert.Equal(t, "cors", got.Feed.Name())

	_, ok = registry.Lookup("nris")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicateFeed(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Registration{Feed: &stubFeed{name: "cors"}, Handler: &stubHandler{}}))

	err := registry.Register(Registration{Feed: &stubFeed{name: "cors"}, Handler: &stubHandler{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RejectsIncompleteRegistration(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register(Registration{Feed: &stubFeed{name: "cors"}}))
	assert.Error(t, registry.Register(Registration{Handler: &stubHandler{}}))
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Registration{Feed: &stubFeed{name: "cors"}, Handler: &stubHandler{}}))
	require.NoError(t, registry.Register(Registration{Feed: &stubFeed{name: "nris"}, Handler: &stubHandler{}}))

	assert.ElementsMatch(t, []string{"cors", "nris"}, registry.Names())
}
