// Package manifest defines the declared-capability document format and
// the types that make up a published registry snapshot (spec.md §3,
// §4.2).
package manifest

import "encoding/json"

// SupportedManifestVersion is the single manifest_version value the
// loader accepts. A manifest declaring any other value fails to load.
const SupportedManifestVersion = "1"

// CredentialReq describes a credential a manifest or tool needs before
// dispatch.
type CredentialReq struct {
	ID       string   `json:"id" validate:"required"`
	Provider string   `json:"provider,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

// PermissionReq describes an OS permission a manifest or tool needs
// before dispatch.
type PermissionReq struct {
	Name     string `json:"name" validate:"required"`
	Optional bool   `json:"optional,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Requirements bundles credential and permission requirements shared
// between manifest-level defaults and per-tool overrides.
type Requirements struct {
	Credentials []CredentialReq `json:"credentials,omitempty"`
	Permissions []PermissionReq `json:"permissions,omitempty"`
}

// Tool is one capability exposed by a manifest.
type Tool struct {
	Name         string          `json:"name" validate:"required"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Requires     *Requirements   `json:"requires,omitempty"`
	Annotations  map[string]any  `json:"annotations,omitempty"`
	Exposure     string          `json:"exposure,omitempty"`
}

// AllowRawToken reports whether this tool's annotations opt into raw
// OAuth token retrieval (spec.md §8: "gate raw-token retrieval behind an
// explicit opt-in per manifest").
func (t Tool) AllowRawToken() bool {
	if t.Annotations == nil {
		return false
	}
	v, ok := t.Annotations["allow_raw_token"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ImplementationKind selects how a manifest's tools are dispatched.
type ImplementationKind string

const (
	ImplInternal ImplementationKind = "internal"
	ImplProxy    ImplementationKind = "proxy"
	ImplHelper   ImplementationKind = "helper"
)

// ProxyAuth describes how a proxy implementation injects a credential
// into the rendered HTTP request.
type ProxyAuth struct {
	Strategy     string `json:"strategy"` // bearer | header | query
	CredentialID string `json:"credential_id"`
	HeaderName   string `json:"header_name,omitempty"`
	QueryParam   string `json:"query_param,omitempty"`
	TokenField   string `json:"token_field,omitempty"`
}

// ToolBinding is one tool's rendered HTTP request (proxy implementation).
type ToolBinding struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Query        map[string]string `json:"query,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`
	ResponsePath string            `json:"response_path,omitempty"`
}

// HelperBinding is one tool's helper-process invocation shape.
type HelperBinding struct {
	Action     string `json:"action"`
	InputMode  string `json:"input_mode,omitempty"`
	OutputMode string `json:"output_mode,omitempty"`
}

// Implementation is the tagged union of dispatch strategies a manifest
// declares. Exactly one of the three groups is populated, selected by
// Kind.
type Implementation struct {
	Kind ImplementationKind `json:"kind" validate:"required,oneof=internal proxy helper"`

	// internal
	Module  string            `json:"module,omitempty"`
	Methods map[string]string `json:"methods,omitempty"` // tool_name -> "namespace.operation"

	// proxy
	BaseURL      string                 `json:"base_url,omitempty"`
	Auth         *ProxyAuth             `json:"auth,omitempty"`
	ToolBindings map[string]ToolBinding `json:"tool_bindings,omitempty"`

	// helper
	Runtime         string                   `json:"runtime,omitempty"`
	Entrypoint      string                   `json:"entrypoint,omitempty"`
	Args            []string                 `json:"args,omitempty"`
	Env             map[string]string        `json:"env,omitempty"`
	HelperBindings  map[string]HelperBinding `json:"helper_tool_bindings,omitempty"`
}

// Manifest is one declared capability, loaded from a single *.json file
// in the manifest directory.
type Manifest struct {
	ManifestVersion string          `json:"manifest_version" validate:"required"`
	ID              string          `json:"id" validate:"required"`
	Name            string          `json:"name,omitempty"`
	Description     string          `json:"description,omitempty"`
	Version         string          `json:"version,omitempty"`
	Category        string          `json:"category,omitempty"`
	Requires        Requirements    `json:"requires,omitempty"`
	Tools           []Tool          `json:"tools" validate:"required,min=1,dive"`
	Implementation  Implementation  `json:"implementation" validate:"required"`

	// sourcePath is the file this manifest was loaded from; tracked for
	// reload diagnostics, not part of the wire format.
	sourcePath string `json:"-"`
}

// ResolveRequirements returns tool's requirements, falling back to the
// manifest's defaults when the tool does not override them.
func (m Manifest) ResolveRequirements(toolName string) Requirements {
	for _, t := range m.Tools {
		if t.Name == toolName && t.Requires != nil {
			return *t.Requires
		}
	}
	return m.Requires
}

// ToolByName returns the named tool, if present.
func (m Manifest) ToolByName(name string) (Tool, bool) {
	for _, t := range m.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// MethodBinding is where a method index entry resolves to: the manifest
// that claimed it and the tool name within that manifest.
type MethodBinding struct {
	ManifestID string
	ToolName   string
}

// Registry is an immutable, fully-built snapshot: every manifest that
// currently passed load+validate, and the method index built across all
// of them (spec.md §3: "ManifestRegistry snapshot").
type Registry struct {
	Manifests   map[string]Manifest
	MethodIndex map[string]MethodBinding
}

// Lookup resolves a wire method name ("namespace.operation") to its
// manifest and tool.
func (r *Registry) Lookup(method string) (Manifest, Tool, bool) {
	if r == nil {
		return Manifest{}, Tool{}, false
	}
	binding, ok := r.MethodIndex[method]
	if !ok {
		return Manifest{}, Tool{}, false
	}
	m, ok := r.Manifests[binding.ManifestID]
	if !ok {
		return Manifest{}, Tool{}, false
	}
	t, ok := m.ToolByName(binding.ToolName)
	return m, t, ok
}
