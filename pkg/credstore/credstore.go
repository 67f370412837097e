// Package credstore implements the single encrypted file that holds
// token records, provider OAuth configurations, and labeled credentials
// (spec.md §4.5, §6: "Credential file format").
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docker/docker-credential-helpers/credentials"

	"github.com/localbridge/localbridged/pkg/cryptostore"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

const formatVersion = 1

const aad = "localbridge-credential-store-v1"

// TokenRecord is a live or refreshable OAuth token for a (provider,
// account) pair.
type TokenRecord struct {
	Provider      string    `json:"provider"`
	Account       string    `json:"account"`
	ClientID      string    `json:"client_id,omitempty"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	TokenType     string    `json:"token_type"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	Scopes        []string  `json:"scopes"`
	IssuedAt      time.Time `json:"issued_at"`
	LastRefreshed time.Time `json:"last_refreshed,omitzero"`
}

// NormalizeScopes sorts and deduplicates r.Scopes in place.
func (r *TokenRecord) NormalizeScopes() {
	r.Scopes = normalizeScopes(r.Scopes)
}

func normalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ProviderConfig describes an OAuth provider's endpoints.
type ProviderConfig struct {
	Provider      string   `json:"provider"`
	AuthorizeURL  string   `json:"authorize_url"`
	TokenURL      string   `json:"token_url"`
	RedirectURI   string   `json:"redirect_uri"`
	DefaultScopes []string `json:"default_scopes,omitempty"`
}

// tokenKey identifies a token record by provider and account.
type tokenKey struct {
	Provider string
	Account  string
}

func (k tokenKey) String() string {
	return k.Provider + "/" + k.Account
}

// document is the plaintext sealed inside the credential file.
type document struct {
	TokenRecords    map[string]TokenRecord             `json:"token_records"`
	ProviderConfigs map[string]ProviderConfig          `json:"provider_configs"`
	Credentials     map[string]credentials.Credentials `json:"credentials"`
}

func newDocument() *document {
	return &document{
		TokenRecords:    map[string]TokenRecord{},
		ProviderConfigs: map[string]ProviderConfig{},
		Credentials:     map[string]credentials.Credentials{},
	}
}

// fileHeader precedes the AEAD-sealed body on disk.
type fileHeader struct {
	Version int `json:"version"`
}

// Store is the reader-writer-locked encrypted credential file (spec.md
// §6: reads are lock-free after a short critical section, writes
// serialize store_token/refresh/revoke).
type Store struct {
	mu   sync.RWMutex
	path string
	key  *cryptostore.Key
	doc  *document
}

// Open loads path, decrypting it with key. A missing file starts an empty
// store; a corrupt or tag-invalid file is reported as master_key_missing
// (spec.md §6).
func Open(path string, key *cryptostore.Key) (*Store, error) {
	s := &Store{path: path, key: key}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.doc = newDocument()
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	doc, err := decode(raw, key)
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

func decode(raw []byte, key *cryptostore.Key) (*document, error) {
	var onDisk struct {
		Header fileHeader `json:"header"`
		Sealed []byte     `json:"sealed"`
	}
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return nil, rpcerr.New(rpcerr.MasterKeyMissing, "parsing credential file envelope: %v", err)
	}
	if onDisk.Header.Version != formatVersion {
		return nil, rpcerr.New(rpcerr.MasterKeyMissing, "unsupported credential file version %d", onDisk.Header.Version)
	}

	plaintext, err := cryptostore.Open(key, onDisk.Sealed, []byte(aad))
	if err != nil {
		// The AEAD tag only fails to verify when the derived key is wrong,
		// which for a deterministic machine-identity+username derivation
		// means the store was written under a different identity.
		return nil, rpcerr.New(rpcerr.MasterKeyMissing, "opening credential file: %v", err)
	}

	doc := newDocument()
	if err := json.Unmarshal(plaintext, doc); err != nil {
		return nil, rpcerr.New(rpcerr.MasterKeyMissing, "parsing credential file contents: %v", err)
	}
	if doc.TokenRecords == nil {
		doc.TokenRecords = map[string]TokenRecord{}
	}
	if doc.ProviderConfigs == nil {
		doc.ProviderConfigs = map[string]ProviderConfig{}
	}
	if doc.Credentials == nil {
		doc.Credentials = map[string]credentials.Credentials{}
	}
	return doc, nil
}

// persist seals the current document and atomically replaces the file on
// disk (write-to-temp + fsync + rename, spec.md §6).
func (s *Store) persist() error {
	plaintext, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("marshaling credential file contents: %w", err)
	}

	sealed, err := cryptostore.Seal(s.key, plaintext, []byte(aad))
	if err != nil {
		return fmt.Errorf("sealing credential file: %w", err)
	}

	onDisk := struct {
		Header fileHeader `json:"header"`
		Sealed []byte     `json:"sealed"`
	}{Header: fileHeader{Version: formatVersion}, Sealed: sealed}

	encoded, err := json.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("marshaling credential file envelope: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp credential file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp credential file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp credential file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming credential file into place: %w", err)
	}
	return nil
}

// GetTokenRecord returns the stored record for (provider, account), or
// false if none exists.
func (s *Store) GetTokenRecord(provider, account string) (TokenRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.doc.TokenRecords[tokenKey{provider, account}.String()]
	return rec, ok
}

// PutTokenRecord stores or replaces a token record.
func (s *Store) PutTokenRecord(rec TokenRecord) error {
	rec.NormalizeScopes()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.TokenRecords[tokenKey{rec.Provider, rec.Account}.String()] = rec
	return s.persist()
}

// DeleteTokenRecord removes the record for (provider, account).
func (s *Store) DeleteTokenRecord(provider, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.TokenRecords, tokenKey{provider, account}.String())
	return s.persist()
}

// ListTokenRecords returns all stored records, optionally filtered by
// provider. Returned records still carry secret bytes; callers exposing
// this over the wire must redact (spec.md §5: "metadata without secret
// bytes").
func (s *Store) ListTokenRecords(provider string) []TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TokenRecord, 0, len(s.doc.TokenRecords))
	for _, rec := range s.doc.TokenRecords {
		if provider != "" && rec.Provider != provider {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Account < out[j].Account
	})
	return out
}

// GetProviderConfig returns the OAuth endpoints for provider.
func (s *Store) GetProviderConfig(provider string) (ProviderConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.doc.ProviderConfigs[provider]
	return cfg, ok
}

// PutProviderConfig stores or replaces a provider's OAuth configuration.
func (s *Store) PutProviderConfig(cfg ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.ProviderConfigs[cfg.Provider] = cfg
	return s.persist()
}

// GetCredential returns the labeled credential (API key, username/password
// pair) stored under label.
func (s *Store) GetCredential(label string) (credentials.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.doc.Credentials[label]
	return cred, ok
}

// PutCredential stores or replaces a labeled credential.
func (s *Store) PutCredential(label string, cred credentials.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Credentials[label] = cred
	return s.persist()
}

// DeleteCredential removes a labeled credential.
func (s *Store) DeleteCredential(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Credentials, label)
	return s.persist()
}
