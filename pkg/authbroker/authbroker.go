// Package authbroker leases, refreshes, and revokes OAuth tokens over the
// encrypted credential store (spec.md §4.5). It is the only path that
// reveals secret material to handlers.
package authbroker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/localbridge/localbridged/pkg/credstore"
	"github.com/localbridge/localbridged/pkg/log"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// refreshRetryBackoff is the pause before the single synchronous retry of
// a transient refresh failure (spec.md §7: "retries once on transient
// network errors with a ≤1s backoff").
const refreshRetryBackoff = time.Second

// GuardWindow is how far ahead of expiry a token is considered due for
// refresh (spec.md §4.5: "within a guard window (≈ 60 s) of now").
const GuardWindow = 60 * time.Second

// Resolver resolves an external secret reference (e.g. "op://...") to a
// concrete value. Resolution is lazy and the TTL/caching policy belongs to
// the resolver, not the broker (spec.md §4.5).
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// AccessToken is the live credential handed to a handler.
type AccessToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// AccountStatus is account metadata with secret bytes stripped, safe to
// return over the wire (spec.md §4.5: "list_accounts ... metadata without
// secret bytes").
type AccountStatus struct {
	Provider  string    `json:"provider"`
	Account   string    `json:"account"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Broker leases and refreshes tokens backed by a credstore.Store.
// Concurrent refreshes for the same (provider, account) are coalesced via
// singleflight (spec.md §4.5, §9 invariant 5).
type Broker struct {
	store      *credstore.Store
	httpClient *http.Client
	resolvers  map[string]Resolver
	sf         singleflight.Group
}

// New creates a Broker over store. httpClient is shared across all
// refresh calls; pass nil to use http.DefaultClient.
func New(store *credstore.Store, httpClient *http.Client) *Broker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Broker{
		store:      store,
		httpClient: httpClient,
		resolvers:  map[string]Resolver{},
	}
}

// RegisterResolver installs a resolver plug-in under name.
func (b *Broker) RegisterResolver(name string, r Resolver) {
	b.resolvers[name] = r
}

// GetToken returns a live access token for (provider, account), refreshing
// it first if it is within GuardWindow of expiry. requiredScopes, if
// non-empty, must be a subset of the stored record's scopes.
func (b *Broker) GetToken(ctx context.Context, provider, account string, requiredScopes []string) (AccessToken, error) {
	rec, ok := b.store.GetTokenRecord(provider, account)
	if !ok {
		return AccessToken{}, rpcerr.New(rpcerr.TokenMissing, "no credential for provider=%s account=%s", provider, account)
	}
	if !scopesSatisfy(rec.Scopes, requiredScopes) {
		return AccessToken{}, rpcerr.New(rpcerr.TokenMissing, "stored scopes for provider=%s account=%s do not cover request", provider, account)
	}

	if time.Now().Add(GuardWindow).Before(rec.ExpiresAt) {
		return AccessToken{AccessToken: rec.AccessToken, TokenType: rec.TokenType, ExpiresAt: rec.ExpiresAt}, nil
	}

	return b.refresh(ctx, provider, account, GuardWindow)
}

// refresh performs (or joins an in-flight) token refresh for
// (provider, account). A stored token that is still more than window away
// from expiry is returned as-is without contacting the token endpoint.
func (b *Broker) refresh(ctx context.Context, provider, account string, window time.Duration) (AccessToken, error) {
	key := provider + "/" + account

	v, err, _ := b.sf.Do(key, func() (any, error) {
		rec, ok := b.store.GetTokenRecord(provider, account)
		if !ok {
			return nil, rpcerr.New(rpcerr.TokenMissing, "no credential for provider=%s account=%s", provider, account)
		}
		if time.Now().Add(window).Before(rec.ExpiresAt) {
			// Another follower already refreshed while we waited for the lock.
			return AccessToken{AccessToken: rec.AccessToken, TokenType: rec.TokenType, ExpiresAt: rec.ExpiresAt}, nil
		}

		cfg, ok := b.store.GetProviderConfig(provider)
		if !ok {
			return nil, rpcerr.New(rpcerr.RefreshFailed, "no provider config for %s", provider)
		}

		oauthCfg := &oauth2.Config{
			ClientID:     rec.ClientID,
			ClientSecret: rec.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
			},
		}

		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		refreshCtx = context.WithValue(refreshCtx, oauth2.HTTPClient, b.httpClient)

		src := oauthCfg.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: rec.RefreshToken})
		token, err := src.Token()
		if err != nil && isTransientRefreshErr(err) {
			log.Logf("- transient refresh error for %s/%s, retrying once: %v", provider, account, err)
			select {
			case <-time.After(refreshRetryBackoff):
				token, err = src.Token()
			case <-refreshCtx.Done():
				err = refreshCtx.Err()
			}
		}
		if err != nil {
			log.Logf("- refresh failed for %s/%s: %v", provider, account, err)
			return nil, rpcerr.New(rpcerr.RefreshFailed, "refreshing token for provider=%s account=%s: %v", provider, account, err)
		}

		rec.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			rec.RefreshToken = token.RefreshToken
		}
		rec.TokenType = token.Type()
		rec.ExpiresAt = token.Expiry
		rec.LastRefreshed = time.Now()

		if err := b.store.PutTokenRecord(rec); err != nil {
			return nil, fmt.Errorf("persisting refreshed token: %w", err)
		}
		log.Logf("- refreshed token for %s/%s", provider, account)

		return AccessToken{AccessToken: rec.AccessToken, TokenType: rec.TokenType, ExpiresAt: rec.ExpiresAt}, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return v.(AccessToken), nil
}

// isTransientRefreshErr reports whether err looks like a network-level
// failure worth retrying, as opposed to a definitive response from the
// token endpoint (invalid_grant, revoked client, etc.) that a retry would
// only reproduce.
func isTransientRefreshErr(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	return !errors.As(err, &retrieveErr)
}

// StoreToken persists a full token record, e.g. after an out-of-process
// authorization flow completes.
func (b *Broker) StoreToken(rec credstore.TokenRecord) error {
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now()
	}
	return b.store.PutTokenRecord(rec)
}

// Revoke deletes the stored record for (provider, account). A subsequent
// GetToken reports token_missing.
func (b *Broker) Revoke(provider, account string) error {
	return b.store.DeleteTokenRecord(provider, account)
}

// ListAccounts returns metadata for stored accounts, optionally filtered
// by provider, without secret bytes.
func (b *Broker) ListAccounts(provider string) []AccountStatus {
	recs := b.store.ListTokenRecords(provider)
	out := make([]AccountStatus, 0, len(recs))
	for _, rec := range recs {
		out = append(out, AccountStatus{
			Provider:  rec.Provider,
			Account:   rec.Account,
			Scopes:    rec.Scopes,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return out
}

// GetRawToken returns the unredacted record for (provider, account).
// Callers must gate this behind an explicit manifest opt-in; the broker
// itself applies no policy.
func (b *Broker) GetRawToken(provider, account string) (credstore.TokenRecord, error) {
	rec, ok := b.store.GetTokenRecord(provider, account)
	if !ok {
		return credstore.TokenRecord{}, rpcerr.New(rpcerr.TokenMissing, "no credential for provider=%s account=%s", provider, account)
	}
	return rec, nil
}

// GetCredential returns a labeled non-OAuth credential (API key,
// username/password pair).
func (b *Broker) GetCredential(label string) (AccessToken, error) {
	cred, ok := b.store.GetCredential(label)
	if !ok {
		return AccessToken{}, rpcerr.New(rpcerr.TokenMissing, "no credential labeled %s", label)
	}
	return AccessToken{AccessToken: cred.Secret, TokenType: "apikey"}, nil
}

func scopesSatisfy(stored, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		have[s] = struct{}{}
	}
	for _, want := range required {
		if _, ok := have[want]; !ok {
			return false
		}
	}
	return true
}
