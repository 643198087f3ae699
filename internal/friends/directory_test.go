package friends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/rest"
)

func friendServer(friends []rest.Friend, fail *bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail != nil && *fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(friends)
	}))
}

func TestRefresh_PopulatesAndPersists(t *testing.T) {
	srv := friendServer([]rest.Friend{
		{ID: "u2", Nickname: "Bob"},
		{ID: "u3", Nickname: "Carol"},
	}, nil)
	defer srv.Close()

	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDirectory("me", rest.NewClient(srv.URL, zap.NewNop()), store, zap.NewNop())

	require.NoError(t, d.Refresh(ctx))

	name, ok := d.Resolve("u2")
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)
	_, ok = d.Resolve("stranger")
	assert.False(t, ok)

	cached, err := store.List(ctx, "me")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestLoad_PrimesFromStoreWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Replace(ctx, "me", []rest.Friend{{ID: "u2", Nickname: "Bob"}}))

	// Collaborator unreachable; the cached copy still resolves.
	d := NewDirectory("me", rest.NewClient("http://127.0.0.1:0", zap.NewNop()), store, zap.NewNop())
	require.NoError(t, d.Load(ctx))

	name, ok := d.Resolve("u2")
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)
}

func TestRefresh_FailureKeepsCache(t *testing.T) {
	fail := false
	srv := friendServer([]rest.Friend{{ID: "u2", Nickname: "Bob"}}, &fail)
	defer srv.Close()

	ctx := context.Background()
	d := NewDirectory("me", rest.NewClient(srv.URL, zap.NewNop()), NewMemoryStore(), zap.NewNop())
	require.NoError(t, d.Refresh(ctx))

	fail = true
	require.Error(t, d.Refresh(ctx))

	name, ok := d.Resolve("u2")
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)
}
