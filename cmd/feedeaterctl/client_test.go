package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/modules", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"Name":"rss","Version":"1"}]`))
	}))
	defer srv.Close()

	var out []struct {
		Name    string
		Version string
	}
	require.NoError(t, newAPIClient(srv.URL).get("/api/modules", nil, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "rss", out[0].Name)
}

func TestAPIClientSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"setting not found"}`))
	}))
	defer srv.Close()

	err := newAPIClient(srv.URL).get("/api/settings/rss/missing", nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting not found")
}

func TestAPIClientPutSendsBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newAPIClient(srv.URL).put("/api/settings/rss/feed_url", map[string]any{"value": "https://x", "isSecret": false}))
	assert.Contains(t, gotBody, "https://x")
}
