package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbridge/localbridged/pkg/authbroker"
	"github.com/localbridge/localbridged/pkg/credstore"
	"github.com/localbridge/localbridged/pkg/cryptostore"
	"github.com/localbridge/localbridged/pkg/handlers"
	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/permission"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

type staticRegistry struct {
	snap *manifest.Registry
}

func (s staticRegistry) Snapshot() *manifest.Registry { return s.snap }

type recordingFacade struct {
	granted map[string]permission.Status
	calls   []string
}

func (f *recordingFacade) Check(ctx context.Context, id string) (permission.Status, error) {
	f.calls = append(f.calls, id)
	if status, ok := f.granted[id]; ok {
		return status, nil
	}
	return permission.Denied, nil
}

func (f *recordingFacade) Request(ctx context.Context, id string) (permission.Status, error) {
	return f.Check(ctx, id)
}

func newTestStore(t *testing.T) *credstore.Store {
	t.Helper()
	key, err := cryptostore.DeriveMasterKey("test-machine", "test-user")
	require.NoError(t, err)
	store, err := credstore.Open(t.TempDir()+"/creds.enc", key)
	require.NoError(t, err)
	return store
}

func buildRegistry(m manifest.Manifest) *manifest.Registry {
	return &manifest.Registry{
		Manifests: map[string]manifest.Manifest{m.ID: m},
		MethodIndex: map[string]manifest.MethodBinding{
			"greeter.hello": {ManifestID: m.ID, ToolName: "hello"},
		},
	}
}

func echoHandlers() *handlers.Registry {
	reg := handlers.NewRegistry()
	reg.Register("internal_greeter", echoNamespace{})
	return reg
}

type echoNamespace struct{}

func (echoNamespace) Handle(ctx handlers.Context, operation string, params jsonrpc.Params, requestID []byte) handlers.Response {
	return handlers.OK(map[string]any{"greeted": true})
}

func baseManifest() manifest.Manifest {
	return manifest.Manifest{
		ManifestVersion: "1",
		ID:              "greeter",
		Tools: []manifest.Tool{
			{Name: "hello"},
		},
		Implementation: manifest.Implementation{
			Kind: manifest.ImplInternal,
			Methods: map[string]string{
				"hello": "internal_greeter.hello",
			},
		},
	}
}

func TestRouteDispatchesInternalSuccess(t *testing.T) {
	m := baseManifest()
	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(newTestStore(t), nil), permission.StubFacade{}, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "greeter.hello"}
	resp := rt.Route(context.Background(), req)

	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"greeted": true}, resp.Result)
}

func TestRouteMethodNotFound(t *testing.T) {
	m := baseManifest()
	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(newTestStore(t), nil), permission.StubFacade{}, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "ghost.op"}
	resp := rt.Route(context.Background(), req)

	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcerr.MethodNotFound.Code(), resp.Error.Code)
}

func TestRoutePermissionDeniedBeforeCredentialAcquisition(t *testing.T) {
	m := baseManifest()
	m.Requires.Permissions = []manifest.PermissionReq{{Name: "contacts.read"}}
	m.Requires.Credentials = []manifest.CredentialReq{{ID: "github", Provider: "github"}}

	facade := &recordingFacade{granted: map[string]permission.Status{}}
	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(newTestStore(t), nil), facade, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "greeter.hello"}
	resp := rt.Route(context.Background(), req)

	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcerr.PermissionDenied.Code(), resp.Error.Code)
	// The credential store was never consulted: no stored github token
	// exists, so any attempted refresh would itself have failed — the
	// permission_denied error must come from the gate, not the broker.
	assert.Contains(t, facade.calls, "contacts.read")
}

func TestRouteOptionalPermissionDeniedIsSkipped(t *testing.T) {
	m := baseManifest()
	m.Requires.Permissions = []manifest.PermissionReq{{Name: "contacts.read", Optional: true}}

	facade := &recordingFacade{granted: map[string]permission.Status{}}
	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(newTestStore(t), nil), facade, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "greeter.hello"}
	resp := rt.Route(context.Background(), req)

	require.Nil(t, resp.Error)
}

func TestRouteMissingRequiredCredentialFails(t *testing.T) {
	m := baseManifest()
	m.Requires.Credentials = []manifest.CredentialReq{{ID: "github", Provider: "github"}}

	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(newTestStore(t), nil), permission.StubFacade{}, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "greeter.hello"}
	resp := rt.Route(context.Background(), req)

	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcerr.TokenMissing.Code(), resp.Error.Code)
}

func TestRouteOptionalMissingCredentialIsSkipped(t *testing.T) {
	m := baseManifest()
	m.Requires.Credentials = []manifest.CredentialReq{{ID: "github", Provider: "github", Optional: true}}

	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(newTestStore(t), nil), permission.StubFacade{}, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "greeter.hello"}
	resp := rt.Route(context.Background(), req)

	require.Nil(t, resp.Error)
}

func TestRouteWithStoredCredentialSucceeds(t *testing.T) {
	m := baseManifest()
	m.Requires.Credentials = []manifest.CredentialReq{{ID: "github", Provider: "github"}}

	store := newTestStore(t)
	require.NoError(t, store.PutTokenRecord(credstore.TokenRecord{
		Provider:    "github",
		Account:     "github",
		AccessToken: "tok-123",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	rt := New(staticRegistry{snap: buildRegistry(m)}, echoHandlers(), authbroker.New(store, nil), permission.StubFacade{}, nil, nil)

	req := jsonrpc.Request{Version: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "greeter.hello"}
	resp := rt.Route(context.Background(), req)

	require.Nil(t, resp.Error)
}
