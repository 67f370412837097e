package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/docker/docker-credential-helpers/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/localbridged/pkg/authbroker"
	"github.com/localbridge/localbridged/pkg/credstore"
	"github.com/localbridge/localbridged/pkg/cryptostore"
	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

func newTestStoreAndBroker(t *testing.T) (*credstore.Store, *authbroker.Broker) {
	t.Helper()
	key, err := cryptostore.DeriveMasterKey("test-machine", "test-user")
	require.NoError(t, err)
	store, err := credstore.Open(t.TempDir()+"/creds.enc", key)
	require.NoError(t, err)
	return store, authbroker.New(store, nil)
}

func mustParams(t *testing.T, m map[string]any) jsonrpc.Params {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	params, err := jsonrpc.ParseParams(raw)
	require.NoError(t, err)
	return params
}

func TestAuthStoreTokenThenGetToken(t *testing.T) {
	_, broker := newTestStoreAndBroker(t)
	ns := AuthNamespace{Broker: broker}
	ctx := Context{Context: context.Background()}

	stored := ns.storeToken(mustParams(t, map[string]any{
		"provider":     "github",
		"account":      "octocat",
		"access_token": "tok-abc",
		"token_type":   "Bearer",
		"expires_at":   time.Now().Add(time.Hour).Format(time.RFC3339),
	}))
	require.Nil(t, stored.Err)

	resp := ns.getToken(ctx, mustParams(t, map[string]any{"provider": "github", "account": "octocat"}))
	require.Nil(t, resp.Err)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "tok-abc", result["access_token"])
}

func TestAuthGetTokenMissingIsTokenMissing(t *testing.T) {
	_, broker := newTestStoreAndBroker(t)
	ns := AuthNamespace{Broker: broker}
	ctx := Context{Context: context.Background()}

	resp := ns.getToken(ctx, mustParams(t, map[string]any{"provider": "github", "account": "nobody"}))
	require.NotNil(t, resp.Err)
	assert.Equal(t, rpcerr.TokenMissing, resp.Err.Kind)
}

func TestAuthGetRawTokenRejectedWithoutAnnotation(t *testing.T) {
	_, broker := newTestStoreAndBroker(t)
	ns := AuthNamespace{Broker: broker}
	ctx := Context{Context: context.Background(), ManifestID: "m", ToolName: "t", AllowRawToken: false}

	resp := ns.Handle(ctx, "get_raw_token", mustParams(t, map[string]any{"provider": "github", "account": "octocat"}), nil)
	require.NotNil(t, resp.Err)
	assert.Equal(t, rpcerr.InvalidRequest, resp.Err.Kind)
}

func TestAuthGetRawTokenAllowedWithAnnotation(t *testing.T) {
	_, broker := newTestStoreAndBroker(t)
	require.NoError(t, broker.StoreToken(credstore.TokenRecord{
		Provider:    "github",
		Account:     "octocat",
		AccessToken: "raw-tok",
		TokenType:   "Bearer",
	}))
	ns := AuthNamespace{Broker: broker}
	ctx := Context{Context: context.Background(), ManifestID: "m", ToolName: "t", AllowRawToken: true}

	resp := ns.Handle(ctx, "get_raw_token", mustParams(t, map[string]any{"provider": "github", "account": "octocat"}), nil)
	require.Nil(t, resp.Err)
	rec := resp.Result.(credstore.TokenRecord)
	assert.Equal(t, "raw-tok", rec.AccessToken)
}

func TestAuthGetCredential(t *testing.T) {
	store, broker := newTestStoreAndBroker(t)
	require.NoError(t, store.PutCredential("notion-api-key", credentials.Credentials{
		ServerURL: "notion",
		Username:  "api",
		Secret:    "sk-123",
	}))
	ns := AuthNamespace{Broker: broker}

	resp := ns.getCredential(mustParams(t, map[string]any{"label": "notion-api-key"}))
	require.Nil(t, resp.Err)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "sk-123", result["value"])
}

func TestAuthListAccountsOmitsSecretBytes(t *testing.T) {
	_, broker := newTestStoreAndBroker(t)
	require.NoError(t, broker.StoreToken(credstore.TokenRecord{
		Provider:     "github",
		Account:      "octocat",
		AccessToken:  "super-secret",
		RefreshToken: "also-secret",
	}))
	ns := AuthNamespace{Broker: broker}

	resp := ns.listAccounts(mustParams(t, map[string]any{}))
	require.Nil(t, resp.Err)
	accounts := resp.Result.([]authbroker.AccountStatus)
	require.Len(t, accounts, 1)
	assert.Equal(t, "octocat", accounts[0].Account)
}
