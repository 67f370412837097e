// Package proxy renders a manifest's declarative HTTP binding into a
// concrete outgoing request and projects its response (spec.md §4.6).
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// DefaultTimeout bounds a proxy call (spec.md §5: "10 s for proxy HTTP
// calls").
const DefaultTimeout = 10 * time.Second

var templateVar = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// NewClient returns the shared *http.Client proxy calls use: connection
// pooling with a conservative default timeout (spec.md §4.6: "A single
// shared HTTP client is used").
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Credential is the bearer/header/query value the broker resolved for
// this call.
type Credential struct {
	Token      string
	RawPayload map[string]any // non-nil when the stored credential was a JSON blob
}

// fieldValue extracts auth.token_field from a JSON-blob credential, or
// returns the bare token when no sub-field selection applies.
func (c Credential) fieldValue(field string) (string, error) {
	if field == "" || c.RawPayload == nil {
		return c.Token, nil
	}
	v, ok := c.RawPayload[field]
	if !ok {
		return "", fmt.Errorf("credential has no field %q", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("credential field %q is not a string", field)
	}
	return s, nil
}

// Call renders binding against params, injects cred per auth, performs
// the HTTP round trip with client, and returns the (optionally
// response_path-projected) result.
func Call(ctx context.Context, client *http.Client, baseURL string, binding manifest.ToolBinding, auth *manifest.ProxyAuth, cred Credential, params map[string]any) (any, error) {
	renderedPath, err := substitute(binding.Path, params, true)
	if err != nil {
		return nil, err
	}
	fullURL := strings.TrimSuffix(baseURL, "/") + renderedPath

	query := url.Values{}
	for k, v := range binding.Query {
		rendered, err := substitute(v, params, false)
		if err != nil {
			return nil, err
		}
		if rendered == "" {
			continue
		}
		query.Set(k, rendered)
	}

	var body io.Reader
	method := strings.ToUpper(binding.Method)
	if method != "" && method != http.MethodGet && method != http.MethodHead {
		payload, err := renderBody(binding.BodyTemplate, params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	reqURL := fullURL
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("building proxy request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range binding.Headers {
		rendered, err := substitute(v, params, false)
		if err != nil {
			return nil, err
		}
		req.Header.Set(k, rendered)
	}

	if auth != nil {
		if err := applyAuth(req, query, *auth, cred); err != nil {
			return nil, err
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, "proxy request failed: %v", err).WithData(map[string]any{"url": fullURL})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, "reading proxy response: %v", err)
	}

	if resp.StatusCode >= 400 {
		return nil, rpcerr.New(rpcerr.InternalError, "upstream returned status %d", resp.StatusCode).
			WithData(map[string]any{"status": resp.StatusCode, "body": sanitizeUpstreamBody(respBody)})
	}

	var decoded any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return nil, rpcerr.New(rpcerr.InternalError, "upstream response was not valid JSON: %v", err)
		}
	}

	if binding.ResponsePath == "" {
		return decoded, nil
	}
	projected, err := jsonpath.Get(binding.ResponsePath, decoded)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, "projecting response_path %q: %v", binding.ResponsePath, err)
	}
	return projected, nil
}

func applyAuth(req *http.Request, query url.Values, auth manifest.ProxyAuth, cred Credential) error {
	value, err := cred.fieldValue(auth.TokenField)
	if err != nil {
		return rpcerr.New(rpcerr.InternalError, "resolving auth token: %v", err)
	}

	switch auth.Strategy {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+value)
	case "header":
		req.Header.Set(auth.HeaderName, value)
	case "query":
		q := req.URL.Query()
		q.Set(auth.QueryParam, value)
		req.URL.RawQuery = q.Encode()
	default:
		return rpcerr.New(rpcerr.InternalError, "unknown auth strategy %q", auth.Strategy)
	}
	return nil
}

// substitute replaces {{var}} placeholders in s with string-ified values
// from params. When required is true, a missing variable is
// invalid_params; otherwise it resolves to an empty string.
func substitute(s string, params map[string]any, required bool) (string, error) {
	var missing string
	out := templateVar.ReplaceAllStringFunc(s, func(match string) string {
		name := templateVar.FindStringSubmatch(match)[1]
		v, ok := params[name]
		if !ok {
			missing = name
			return ""
		}
		return fmt.Sprint(v)
	})
	if required && missing != "" {
		return "", rpcerr.New(rpcerr.InvalidParams, "missing required substitution %q", missing)
	}
	return out, nil
}

// renderBody produces the JSON request body: rendered from template when
// given, or params passed through verbatim otherwise (spec.md §4.6).
func renderBody(template string, params map[string]any) ([]byte, error) {
	if template == "" {
		return json.Marshal(params)
	}
	rendered, err := substitute(template, params, true)
	if err != nil {
		return nil, err
	}
	// body_template may itself be a JSON document with {{var}} placeholders
	// substituted as raw (unquoted) values; validate it still parses.
	var probe any
	if err := json.Unmarshal([]byte(rendered), &probe); err != nil {
		return nil, rpcerr.New(rpcerr.InvalidParams, "rendered body_template is not valid JSON: %v", err)
	}
	return []byte(rendered), nil
}

// sanitizeUpstreamBody caps the amount of upstream body surfaced in an
// error's diagnostic data.
func sanitizeUpstreamBody(body []byte) string {
	const maxLen = 2048
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
