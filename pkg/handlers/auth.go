package handlers

import (
	"time"

	"github.com/localbridge/localbridged/pkg/authbroker"
	"github.com/localbridge/localbridged/pkg/credstore"
	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// AuthNamespace exposes credential management as the well-known auth.*
// namespace. Raw token retrieval is restricted behind an explicit
// manifest opt-in (spec.md §6, §8).
type AuthNamespace struct {
	Broker *authbroker.Broker
}

func (n AuthNamespace) Handle(ctx Context, operation string, params jsonrpc.Params, requestID []byte) Response {
	switch operation {
	case "get_token":
		return n.getToken(ctx, params)
	case "refresh":
		return n.refresh(ctx, params)
	case "revoke":
		return n.revoke(params)
	case "store_token":
		return n.storeToken(params)
	case "list_accounts":
		return n.listAccounts(params)
	case "get_credential":
		return n.getCredential(params)
	case "get_raw_token":
		return n.getRawToken(ctx, params)
	default:
		return MethodNotFound("auth.%s is not a known operation", operation)
	}
}

func (n AuthNamespace) getToken(ctx Context, params jsonrpc.Params) Response {
	provider, err := params.String("provider")
	if err != nil {
		return InvalidParams("%v", err)
	}
	account, err := params.String("account")
	if err != nil {
		return InvalidParams("%v", err)
	}
	var scopes []string
	if params.Has("scopes") {
		scopes, err = params.StringSlice("scopes")
		if err != nil {
			return InvalidParams("%v", err)
		}
	}

	tok, err := n.Broker.GetToken(ctx, provider, account, scopes)
	if err != nil {
		return fromBrokerError(err)
	}
	return OK(map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
		"expires_at":   tok.ExpiresAt.Format(time.RFC3339),
	})
}

func (n AuthNamespace) refresh(ctx Context, params jsonrpc.Params) Response {
	provider, err := params.String("provider")
	if err != nil {
		return InvalidParams("%v", err)
	}
	account, err := params.String("account")
	if err != nil {
		return InvalidParams("%v", err)
	}
	tok, err := n.Broker.GetToken(ctx, provider, account, nil)
	if err != nil {
		return fromBrokerError(err)
	}
	return OK(map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
		"expires_at":   tok.ExpiresAt.Format(time.RFC3339),
	})
}

func (n AuthNamespace) revoke(params jsonrpc.Params) Response {
	provider, err := params.String("provider")
	if err != nil {
		return InvalidParams("%v", err)
	}
	account, err := params.String("account")
	if err != nil {
		return InvalidParams("%v", err)
	}
	if err := n.Broker.Revoke(provider, account); err != nil {
		return Err(rpcerr.InternalError, "revoking credential: %v", err)
	}
	return OK(nil)
}

func (n AuthNamespace) storeToken(params jsonrpc.Params) Response {
	raw := params.Raw()
	provider, _ := raw["provider"].(string)
	account, _ := raw["account"].(string)
	if provider == "" || account == "" {
		return InvalidParams("store_token requires provider and account")
	}

	rec := credstore.TokenRecord{
		Provider:     provider,
		Account:      account,
		TokenType:    stringField(raw, "token_type"),
		AccessToken:  stringField(raw, "access_token"),
		RefreshToken: stringField(raw, "refresh_token"),
		ClientID:     stringField(raw, "client_id"),
		ClientSecret: stringField(raw, "client_secret"),
	}
	if expiresAt := stringField(raw, "expires_at"); expiresAt != "" {
		if t, err := time.Parse(time.RFC3339, expiresAt); err == nil {
			rec.ExpiresAt = t
		}
	}
	if scopes, ok := raw["scopes"].([]any); ok {
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				rec.Scopes = append(rec.Scopes, str)
			}
		}
	}

	if err := n.Broker.StoreToken(rec); err != nil {
		return Err(rpcerr.InternalError, "storing token: %v", err)
	}
	return OK(nil)
}

func (n AuthNamespace) listAccounts(params jsonrpc.Params) Response {
	provider := params.OptionalString("provider", "")
	return OK(n.Broker.ListAccounts(provider))
}

func (n AuthNamespace) getCredential(params jsonrpc.Params) Response {
	label, err := params.String("label")
	if err != nil {
		return InvalidParams("%v", err)
	}
	tok, err := n.Broker.GetCredential(label)
	if err != nil {
		return fromBrokerError(err)
	}
	return OK(map[string]any{"value": tok.AccessToken})
}

// getRawToken is gated behind the dispatching tool's allow_raw_token
// annotation (spec.md §8). Context.AllowRawToken is false when this
// namespace is not wired into a router, in which case the operation is
// refused.
func (n AuthNamespace) getRawToken(ctx Context, params jsonrpc.Params) Response {
	if !ctx.AllowRawToken {
		return Err(rpcerr.InvalidRequest, "raw token retrieval is not permitted for %s.%s", ctx.ManifestID, ctx.ToolName)
	}

	provider, err := params.String("provider")
	if err != nil {
		return InvalidParams("%v", err)
	}
	account, err := params.String("account")
	if err != nil {
		return InvalidParams("%v", err)
	}
	rec, err := n.Broker.GetRawToken(provider, account)
	if err != nil {
		return fromBrokerError(err)
	}
	return OK(rec)
}

func fromBrokerError(err error) Response {
	if rpcErr, ok := err.(*rpcerr.Error); ok {
		return Response{Err: rpcErr}
	}
	return Err(rpcerr.InternalError, "%v", err)
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
