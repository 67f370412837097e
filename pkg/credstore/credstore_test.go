package credstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker-credential-helpers/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/localbridged/pkg/cryptostore"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

func testKey(t *testing.T) *cryptostore.Key {
	t.Helper()
	key, err := cryptostore.DeriveMasterKey("test-machine", "test-user")
	require.NoError(t, err)
	t.Cleanup(key.Close)
	return key
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)

	_, ok := store.GetTokenRecord("google_calendar", "me@example.com")
	assert.False(t, ok)
}

func TestOpenWithWrongKeyReturnsMasterKeyMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)
	require.NoError(t, store.PutTokenRecord(TokenRecord{
		Provider:    "google_calendar",
		Account:     "me@example.com",
		AccessToken: "at-live",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	wrongKey, err := cryptostore.DeriveMasterKey("other-machine", "other-user")
	require.NoError(t, err)
	t.Cleanup(wrongKey.Close)

	_, err = Open(path, wrongKey)
	rpcErr, ok := err.(*rpcerr.Error)
	require.True(t, ok)
	assert.Equal(t, rpcerr.MasterKeyMissing, rpcErr.Kind)
}

func TestPutAndGetTokenRecordNormalizesScopes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)

	rec := TokenRecord{
		Provider:    "google_calendar",
		Account:     "me@example.com",
		TokenType:   "Bearer",
		AccessToken: "at-1",
		ExpiresAt:   time.Now().Add(time.Hour),
		Scopes:      []string{"calendar.write", "calendar.read", "calendar.read"},
	}
	require.NoError(t, store.PutTokenRecord(rec))

	got, ok := store.GetTokenRecord("google_calendar", "me@example.com")
	require.True(t, ok)
	assert.Equal(t, []string{"calendar.read", "calendar.write"}, got.Scopes)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	key := testKey(t)

	store, err := Open(path, key)
	require.NoError(t, err)
	require.NoError(t, store.PutTokenRecord(TokenRecord{
		Provider:    "google_calendar",
		Account:     "me@example.com",
		AccessToken: "at-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	reopened, err := Open(path, key)
	require.NoError(t, err)
	got, ok := reopened.GetTokenRecord("google_calendar", "me@example.com")
	require.True(t, ok)
	assert.Equal(t, "at-1", got.AccessToken)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)
	require.NoError(t, store.PutTokenRecord(TokenRecord{Provider: "p", Account: "a", AccessToken: "x"}))

	wrongKey, err := cryptostore.DeriveMasterKey("other-machine", "other-user")
	require.NoError(t, err)
	defer wrongKey.Close()

	_, err = Open(path, wrongKey)
	assert.Error(t, err)
}

func TestDeleteTokenRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)

	require.NoError(t, store.PutTokenRecord(TokenRecord{Provider: "p", Account: "a", AccessToken: "x"}))
	require.NoError(t, store.DeleteTokenRecord("p", "a"))

	_, ok := store.GetTokenRecord("p", "a")
	assert.False(t, ok)
}

func TestListTokenRecordsFiltersByProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)

	require.NoError(t, store.PutTokenRecord(TokenRecord{Provider: "google_calendar", Account: "a@example.com"}))
	require.NoError(t, store.PutTokenRecord(TokenRecord{Provider: "github", Account: "b"}))

	all := store.ListTokenRecords("")
	assert.Len(t, all, 2)

	filtered := store.ListTokenRecords("github")
	require.Len(t, filtered, 1)
	assert.Equal(t, "github", filtered[0].Provider)
}

func TestProviderConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)

	cfg := ProviderConfig{
		Provider:     "google_calendar",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		RedirectURI:  "http://localhost:9876/callback",
	}
	require.NoError(t, store.PutProviderConfig(cfg))

	got, ok := store.GetProviderConfig("google_calendar")
	require.True(t, ok)
	assert.Equal(t, cfg, got)
}

func TestLabeledCredentialRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := Open(path, testKey(t))
	require.NoError(t, err)

	cred := credentials.Credentials{ServerURL: "api.example.com", Username: "apikey", Secret: "sk-123"}
	require.NoError(t, store.PutCredential("example-api", cred))

	got, ok := store.GetCredential("example-api")
	require.True(t, ok)
	assert.Equal(t, cred, got)

	require.NoError(t, store.DeleteCredential("example-api"))
	_, ok = store.GetCredential("example-api")
	assert.False(t, ok)
}
