package handlers

import (
	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/permission"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// PermissionsNamespace exposes the permission facade as the well-known
// permissions.* namespace (spec.md §6).
type PermissionsNamespace struct {
	Facade permission.Facade
}

func (n PermissionsNamespace) Handle(ctx Context, operation string, params jsonrpc.Params, requestID []byte) Response {
	switch operation {
	case "check":
		return n.check(ctx, params)
	case "request":
		return n.request(ctx, params)
	default:
		return MethodNotFound("permissions.%s is not a known operation", operation)
	}
}

func (n PermissionsNamespace) check(ctx Context, params jsonrpc.Params) Response {
	id, err := params.String("permission_id")
	if err != nil {
		return InvalidParams("%v", err)
	}
	status, err := n.Facade.Check(ctx, id)
	if err != nil {
		return Err(rpcerr.InternalError, "checking permission %s: %v", id, err)
	}
	return OK(map[string]any{"permission_id": id, "status": status})
}

func (n PermissionsNamespace) request(ctx Context, params jsonrpc.Params) Response {
	id, err := params.String("permission_id")
	if err != nil {
		return InvalidParams("%v", err)
	}
	status, err := n.Facade.Request(ctx, id)
	if err != nil {
		return Err(rpcerr.InternalError, "requesting permission %s: %v", id, err)
	}
	return OK(map[string]any{"permission_id": id, "status": status})
}
