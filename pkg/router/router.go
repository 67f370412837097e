// Package router implements the single per-request pipeline described in
// spec.md §4.3: resolve the method against the manifest registry, gate on
// permissions and credentials, dispatch to the bound implementation, and
// record the activity trail.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/localbridge/localbridged/pkg/activity"
	"github.com/localbridge/localbridged/pkg/authbroker"
	"github.com/localbridge/localbridged/pkg/handlers"
	"github.com/localbridge/localbridged/pkg/helperimpl"
	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/permission"
	"github.com/localbridge/localbridged/pkg/proxy"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// Registry is the set of live method bindings the router resolves
// against. Swapped atomically by a manifest.Watcher; the router only
// ever reads a single snapshot per request.
type Registry interface {
	Snapshot() *manifest.Registry
}

// Router is the assembled request pipeline: one instance is shared by
// every connection (spec.md §5: "handlers, the broker, and the registry
// are shared, read-mostly state").
type Router struct {
	Registry    Registry
	Handlers    *handlers.Registry
	Broker      *authbroker.Broker
	Permissions permission.Facade
	Activity    *activity.Log
	HTTPClient  *http.Client
}

// New assembles a Router from its dependencies. A nil HTTPClient falls
// back to the shared pooled client proxy calls use.
func New(registry Registry, hreg *handlers.Registry, broker *authbroker.Broker, perms permission.Facade, log *activity.Log, httpClient *http.Client) *Router {
	if httpClient == nil {
		httpClient = proxy.NewClient()
	}
	return &Router{
		Registry:    registry,
		Handlers:    hreg,
		Broker:      broker,
		Permissions: perms,
		Activity:    log,
		HTTPClient:  httpClient,
	}
}

// Route resolves req against the current registry snapshot, gates,
// dispatches, and returns the wire-level response. It never panics on a
// malformed request; every failure path produces a typed rpcerr.
func (rt *Router) Route(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	start := time.Now()

	rt.recordAccepted(req.Method)

	resp, outcome := rt.route(ctx, req)
	rt.recordCompleted(req.Method, outcome, time.Since(start))

	return resp
}

func (rt *Router) route(ctx context.Context, req jsonrpc.Request) (jsonrpc.Response, string) {
	params, err := jsonrpc.ParseParams(req.Params)
	if err != nil {
		return rpcErrResponse(req.ID, rpcerr.New(rpcerr.InvalidRequest, "%v", err)), "invalid_request"
	}

	snap := rt.Registry.Snapshot()
	m, tool, ok := snap.Lookup(req.Method)
	if !ok {
		return rpcErrResponse(req.ID, rpcerr.New(rpcerr.MethodNotFound, "no tool is bound to method %q", req.Method)), "method_not_found"
	}

	reqs := m.ResolveRequirements(tool.Name)

	// Permission gates are evaluated before any credential is touched, so
	// a missing permission never triggers an OAuth refresh (spec.md §9).
	if err := rt.checkPermissions(ctx, reqs); err != nil {
		return rpcErrResponse(req.ID, err), "permission_denied"
	}

	creds, err := rt.acquireCredentials(ctx, reqs)
	if err != nil {
		return rpcErrResponse(req.ID, err), errOutcome(err)
	}

	result, err := rt.dispatch(ctx, m, tool, params, creds)
	if err != nil {
		return rpcErrResponse(req.ID, err), errOutcome(err)
	}

	return jsonrpc.Ok(req.ID, result), "ok"
}

func (rt *Router) checkPermissions(ctx context.Context, reqs manifest.Requirements) error {
	for _, p := range reqs.Permissions {
		status, err := rt.Permissions.Check(ctx, p.Name)
		if err != nil {
			return rpcerr.New(rpcerr.InternalError, "checking permission %s: %v", p.Name, err)
		}
		if status.Granted() {
			continue
		}
		if p.Optional {
			continue
		}
		return rpcerr.New(rpcerr.PermissionDenied, "permission %s is %s", p.Name, status)
	}
	return nil
}

// acquireCredentials resolves every declared credential requirement to a
// live token, keyed by its manifest-declared credential id. A stored
// token is keyed by (provider, account); a credential requirement's own
// id doubles as the account name, since each manifest-declared
// credential id names exactly one stored account for this user.
func (rt *Router) acquireCredentials(ctx context.Context, reqs manifest.Requirements) (map[string]handlers.Credential, error) {
	out := make(map[string]handlers.Credential, len(reqs.Credentials))
	for _, c := range reqs.Credentials {
		if c.Kind == "credential" {
			tok, err := rt.Broker.GetCredential(c.ID)
			if err != nil {
				if c.Optional {
					continue
				}
				return nil, err
			}
			out[c.ID] = handlers.Credential{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
			continue
		}

		tok, err := rt.Broker.GetToken(ctx, c.Provider, c.ID, c.Scopes)
		if err != nil {
			if c.Optional {
				continue
			}
			return nil, err
		}
		out[c.ID] = handlers.Credential{
			Provider:    c.Provider,
			Account:     c.ID,
			AccessToken: tok.AccessToken,
			TokenType:   tok.TokenType,
		}
	}
	return out, nil
}

func (rt *Router) dispatch(ctx context.Context, m manifest.Manifest, tool manifest.Tool, params jsonrpc.Params, creds map[string]handlers.Credential) (any, error) {
	switch m.Implementation.Kind {
	case manifest.ImplInternal:
		return rt.dispatchInternal(ctx, m, tool, params, creds)
	case manifest.ImplProxy:
		return rt.dispatchProxy(ctx, m, tool, params, creds)
	case manifest.ImplHelper:
		return rt.dispatchHelper(ctx, m, tool, params, creds)
	default:
		return nil, rpcerr.New(rpcerr.InternalError, "manifest %s declares unknown implementation kind %q", m.ID, m.Implementation.Kind)
	}
}

func (rt *Router) dispatchInternal(ctx context.Context, m manifest.Manifest, tool manifest.Tool, params jsonrpc.Params, creds map[string]handlers.Credential) (any, error) {
	method, ok := m.Implementation.Methods[tool.Name]
	if !ok {
		return nil, rpcerr.New(rpcerr.InternalError, "manifest %s has no internal method bound for tool %s", m.ID, tool.Name)
	}
	hctx := handlers.Context{
		Context:       ctx,
		Credentials:   creds,
		HTTPClient:    rt.HTTPClient,
		ManifestID:    m.ID,
		ToolName:      tool.Name,
		AllowRawToken: tool.AllowRawToken(),
	}
	resp := rt.Handlers.Dispatch(hctx, method, params, nil)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.Result, nil
}

func (rt *Router) dispatchProxy(ctx context.Context, m manifest.Manifest, tool manifest.Tool, params jsonrpc.Params, creds map[string]handlers.Credential) (any, error) {
	binding, ok := m.Implementation.ToolBindings[tool.Name]
	if !ok {
		return nil, rpcerr.New(rpcerr.InternalError, "manifest %s has no proxy binding for tool %s", m.ID, tool.Name)
	}

	var cred proxy.Credential
	if auth := m.Implementation.Auth; auth != nil && auth.CredentialID != "" {
		c, ok := creds[auth.CredentialID]
		if !ok {
			return nil, rpcerr.New(rpcerr.TokenMissing, "no credential resolved for %s", auth.CredentialID)
		}
		cred = proxy.Credential{Token: c.AccessToken}
	}

	return proxy.Call(ctx, rt.HTTPClient, m.Implementation.BaseURL, binding, m.Implementation.Auth, cred, params.Raw())
}

func (rt *Router) dispatchHelper(ctx context.Context, m manifest.Manifest, tool manifest.Tool, params jsonrpc.Params, creds map[string]handlers.Credential) (any, error) {
	_, ok := m.Implementation.HelperBindings[tool.Name]
	if !ok {
		return nil, rpcerr.New(rpcerr.InternalError, "manifest %s has no helper binding for tool %s", m.ID, tool.Name)
	}

	var token string
	reqs := m.ResolveRequirements(tool.Name)
	if len(reqs.Credentials) > 0 {
		if c, ok := creds[reqs.Credentials[0].ID]; ok {
			token = c.AccessToken
		}
	}

	return helperimpl.Invoke(ctx, m.Implementation, tool.Name, token, params.Raw(), 0)
}

func (rt *Router) recordAccepted(method string) {
	if rt.Activity == nil {
		return
	}
	rt.Activity.Append(activity.NewEvent("router", activity.EventAccepted, method, map[string]any{"method": method}))
}

func (rt *Router) recordCompleted(method, outcome string, elapsed time.Duration) {
	if rt.Activity == nil {
		return
	}
	rt.Activity.Append(activity.NewEvent("router", activity.EventCompleted, method, map[string]any{
		"method":     method,
		"outcome":    outcome,
		"elapsed_ms": elapsed.Milliseconds(),
	}))
}

func rpcErrResponse(id []byte, err error) jsonrpc.Response {
	wire := rpcerr.ToWire(err)
	return jsonrpc.Fail(id, wire.Code, wire.Message, wire.Data)
}

func errOutcome(err error) string {
	if rpcErr, ok := err.(*rpcerr.Error); ok {
		return rpcErr.Kind.String()
	}
	return "internal_error"
}
