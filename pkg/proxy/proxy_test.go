package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

func TestCallInjectsBearerTokenAndQueryParams(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []string{"a", "b"}})
	}))
	defer srv.Close()

	binding := manifest.ToolBinding{
		Method: "GET",
		Path:   "/items",
		Query:  map[string]string{"limit": "{{limit}}"},
	}
	auth := &manifest.ProxyAuth{Strategy: "bearer", CredentialID: "svc"}

	result, err := Call(context.Background(), srv.Client(), srv.URL, binding, auth, Credential{Token: "tok-123"}, map[string]any{"limit": 5})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "5", gotQuery)
	assert.Equal(t, map[string]any{"items": []any{"a", "b"}}, result)
}

func TestCallMissingRequiredPathSubstitutionIsInvalidParams(t *testing.T) {
	binding := manifest.ToolBinding{Method: "GET", Path: "/items/{{id}}"}

	_, err := Call(context.Background(), http.DefaultClient, "http://example.invalid", binding, nil, Credential{}, map[string]any{})
	rpcErr, ok := err.(*rpcerr.Error)
	require.True(t, ok)
	assert.Equal(t, rpcerr.InvalidParams, rpcErr.Kind)
}

func TestCallProjectsResponsePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"value": 42}})
	}))
	defer srv.Close()

	binding := manifest.ToolBinding{Method: "GET", Path: "/x", ResponsePath: "$.data.value"}
	result, err := Call(context.Background(), srv.Client(), srv.URL, binding, nil, Credential{}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), result)
}

func TestCallUpstreamErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer srv.Close()

	binding := manifest.ToolBinding{Method: "GET", Path: "/x"}
	_, err := Call(context.Background(), srv.Client(), srv.URL, binding, nil, Credential{}, nil)
	rpcErr, ok := err.(*rpcerr.Error)
	require.True(t, ok)
	assert.Equal(t, rpcerr.InternalError, rpcErr.Kind)
	data := rpcErr.Data.(map[string]any)
	assert.Equal(t, http.StatusForbidden, data["status"])
}

func TestCallRendersBodyFromParamsWhenNoTemplate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	binding := manifest.ToolBinding{Method: "POST", Path: "/items"}
	_, err := Call(context.Background(), srv.Client(), srv.URL, binding, nil, Credential{}, map[string]any{"name": "widget"})
	require.NoError(t, err)
	assert.Equal(t, "widget", gotBody["name"])
}
