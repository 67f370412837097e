// Package handlers implements in-process namespace dispatch (spec.md
// §4.4): the shared response-building helpers every namespace is
// required to use, and the registry that routes a method's namespace
// prefix to its implementation.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// Response is the uniform shape every namespace handler returns. Exactly
// one of Result or Err is populated.
type Response struct {
	Result any
	Err    *rpcerr.Error
}

// OK builds a successful response.
func OK(result any) Response {
	return Response{Result: result}
}

// Err builds an error response of the given kind.
func Err(kind rpcerr.Kind, format string, args ...any) Response {
	return Response{Err: rpcerr.New(kind, format, args...)}
}

// InvalidParams is shorthand for the invalid_params kind, the sole
// canonical way a handler reports a bad parameter (spec.md §4.4).
func InvalidParams(format string, args ...any) Response {
	return Err(rpcerr.InvalidParams, format, args...)
}

// MethodNotFound is shorthand for the method_not_found kind.
func MethodNotFound(format string, args ...any) Response {
	return Err(rpcerr.MethodNotFound, format, args...)
}

// ToWire converts a namespace Response into the wire-level JSON-RPC
// response for id.
func (r Response) ToWire(id []byte) jsonrpc.Response {
	if r.Err != nil {
		wire := rpcerr.ToWire(r.Err)
		return jsonrpc.Fail(id, wire.Code, wire.Message, wire.Data)
	}
	return jsonrpc.Ok(id, r.Result)
}

// Credential is the live bearer the router acquired for this call before
// dispatch, keyed by the manifest-declared credential id.
type Credential struct {
	Provider    string
	Account     string
	AccessToken string
	TokenType   string
}

// Context carries everything a namespace handler needs beyond its own
// params: acquired credentials, the shared HTTP client, the dispatching
// tool's identity, and the connection's cancellation signal (spec.md
// §4.3 step 4).
type Context struct {
	context.Context
	Credentials map[string]Credential
	HTTPClient  *http.Client

	// ManifestID and ToolName identify the tool the router resolved for
	// this call. AllowRawToken mirrors that tool's allow_raw_token
	// annotation (spec.md §8 open question (b)) so auth.get_raw_token
	// can gate on it without importing pkg/manifest.
	ManifestID    string
	ToolName      string
	AllowRawToken bool
}

// Credential looks up a credential the router acquired for id.
func (c Context) Credential(id string) (Credential, bool) {
	cred, ok := c.Credentials[id]
	return cred, ok
}

// Namespace is one group of related operations (contacts, calendar,
// auth, permissions, ...), dispatched by operation name.
type Namespace interface {
	Handle(ctx Context, operation string, params jsonrpc.Params, requestID []byte) Response
}

// Registry maps a namespace name to its implementation, populated once
// at startup. The dispatch layer itself has no namespace-specific
// knowledge (spec.md §4.4).
type Registry struct {
	namespaces map[string]Namespace
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{namespaces: map[string]Namespace{}}
}

// Register installs ns under name.
func (r *Registry) Register(name string, ns Namespace) {
	r.namespaces[name] = ns
}

// Dispatch resolves method's namespace prefix ("namespace.operation")
// and routes into the registered implementation.
func (r *Registry) Dispatch(ctx Context, method string, params jsonrpc.Params, requestID []byte) Response {
	namespace, operation, ok := splitMethod(method)
	if !ok {
		return MethodNotFound("malformed method %q", method)
	}
	ns, ok := r.namespaces[namespace]
	if !ok {
		return MethodNotFound("no handler registered for namespace %q", namespace)
	}
	return ns.Handle(ctx, operation, params, requestID)
}

func splitMethod(method string) (namespace, operation string, ok bool) {
	idx := strings.Index(method, ".")
	if idx <= 0 || idx == len(method)-1 {
		return "", "", false
	}
	return method[:idx], method[idx+1:], true
}
