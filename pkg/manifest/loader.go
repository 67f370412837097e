package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/localbridge/localbridged/pkg/log"
)

var validate = validator.New()

// loadResult is one manifest file's outcome: either a parsed manifest or
// a reason it was rejected.
type loadResult struct {
	manifest Manifest
	err      error
}

// loadDir enumerates *.json files in dir, parses and validates each, and
// returns the manifests that passed. Files that fail are logged and
// skipped, not fatal to the overall load (spec.md §4.2 step 2).
func loadDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading manifest directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var loaded []Manifest
	for _, path := range paths {
		m, err := loadFile(path)
		if err != nil {
			log.Logf("- manifest %s rejected: %v", path, err)
			continue
		}
		loaded = append(loaded, m)
	}
	return loaded, nil
}

func loadFile(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if m.ManifestVersion != SupportedManifestVersion {
		return Manifest{}, fmt.Errorf("%s: unsupported manifest_version %q", path, m.ManifestVersion)
	}
	if m.ID == "" {
		return Manifest{}, fmt.Errorf("%s: id must not be empty", path)
	}
	if len(m.Tools) == 0 {
		return Manifest{}, fmt.Errorf("%s: tools must not be empty", path)
	}
	if err := validate.Struct(m); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(m.Tools))
	for _, t := range m.Tools {
		if _, dup := seen[t.Name]; dup {
			return Manifest{}, fmt.Errorf("%s: duplicate tool name %q", path, t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	m.sourcePath = path
	return m, nil
}

// Build assembles a Registry from the manifests that passed load+validate.
// Duplicate ids keep the first manifest encountered (files sorted by
// name, so the lexicographically earliest file wins) and log the loser
// (spec.md §4.2 step 3: "last writer loses, older wins"). A method
// claimed by two manifests fails the later manifest's load entirely
// (step 4).
func Build(manifests []Manifest) *Registry {
	reg := &Registry{
		Manifests:   map[string]Manifest{},
		MethodIndex: map[string]MethodBinding{},
	}

	claimedBy := map[string]string{} // method -> manifest id that owns it in this pass

	for _, m := range manifests {
		if _, dup := reg.Manifests[m.ID]; dup {
			log.Logf("- manifest id %q duplicated by %s, keeping earlier load", m.ID, m.sourcePath)
			continue
		}

		methods := methodsFor(m)
		conflict := false
		for method := range methods {
			if owner, taken := claimedBy[method]; taken && owner != m.ID {
				log.Logf("- manifest %s rejected: method %q already claimed by %s", m.ID, method, owner)
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		for method := range methods {
			claimedBy[method] = m.ID
		}
		for method, binding := range methods {
			reg.MethodIndex[method] = binding
		}
		reg.Manifests[m.ID] = m
	}

	return reg
}

// methodsFor derives the "namespace.operation" -> (manifest, tool)
// mapping this manifest contributes, regardless of implementation kind.
func methodsFor(m Manifest) map[string]MethodBinding {
	out := map[string]MethodBinding{}
	switch m.Implementation.Kind {
	case ImplInternal:
		for toolName, op := range m.Implementation.Methods {
			out[op] = MethodBinding{ManifestID: m.ID, ToolName: toolName}
		}
	case ImplProxy:
		for toolName := range m.Implementation.ToolBindings {
			out[toolName] = MethodBinding{ManifestID: m.ID, ToolName: toolName}
		}
	case ImplHelper:
		for toolName := range m.Implementation.HelperBindings {
			out[toolName] = MethodBinding{ManifestID: m.ID, ToolName: toolName}
		}
	}
	return out
}
