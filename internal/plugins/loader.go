package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a parsed plugin.yaml. External plugins are declarative: each
// provided effect maps to a filter template with named placeholders.
type Manifest struct {
	PluginID string                    `yaml:"plugin_id"`
	Version  string                    `yaml:"version"`
	Kind     Kind                      `yaml:"kind"`
	Provides []string                  `yaml:"provides"`
	Aliases  map[string]string         `yaml:"aliases"`
	Effects  map[string]EffectTemplate `yaml:"effects"`
	Enabled  *bool                     `yaml:"enabled"`
}

// EffectTemplate is a filter fragment with {placeholder} substitution.
type EffectTemplate struct {
	Template string         `yaml:"template"`
	Defaults map[string]any `yaml:"defaults"`
}

// Spec is a discovered, validated plugin ready for registration.
type Spec struct {
	Manifest
	Source Source
	Path   string
}

// manifestKeys are the only top-level keys a manifest may carry. Anything
// else rejects the plugin rather than being silently ignored.
var manifestKeys = map[string]bool{
	"plugin_id": true, "version": true, "kind": true, "provides": true,
	"aliases": true, "effects": true, "enabled": true,
}

// forbiddenTokens reject templates that reach outside pure filtering: file
// access, command injection, and network sources have no place in an effect.
var forbiddenTokens = []string{"movie=", "amovie=", "sendcmd", "asendcmd", "zmq", "azmq", "system", "exec"}

// placeholderRe matches {name} slots in templates.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Root is one directory scanned for plugins.
type Root struct {
	Path   string
	Source Source
}

// DefaultRoots returns the standard scan locations: the working directory's
// plugins folder, then the per-user plugin directory. Extra config-provided
// paths register at user priority.
func DefaultRoots(extra []string) []Root {
	roots := []Root{{Path: "plugins", Source: SourcePackage}}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, Root{Path: filepath.Join(home, ".zundamotion", "plugins"), Source: SourceUser})
	}
	for _, p := range extra {
		roots = append(roots, Root{Path: p, Source: SourceUser})
	}
	return roots
}

// Discover scans the roots for manifests. A plugin is a directory holding
// plugin.yaml, or a standalone .yaml file with an inline manifest. Allow and
// deny lists filter by plugin id; invalid plugins are logged and skipped.
func Discover(roots []Root, allow, deny []string, logger *slog.Logger) []Spec {
	if logger == nil {
		logger = slog.Default()
	}

	var specs []Spec
	for _, root := range roots {
		entries, err := os.ReadDir(root.Path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("scanning plugin root failed",
					slog.String("path", root.Path), slog.Any("error", err))
			}
			continue
		}
		for _, entry := range entries {
			var manifestPath string
			if entry.IsDir() {
				manifestPath = filepath.Join(root.Path, entry.Name(), "plugin.yaml")
			} else if strings.HasSuffix(entry.Name(), ".yaml") || strings.HasSuffix(entry.Name(), ".yml") {
				manifestPath = filepath.Join(root.Path, entry.Name())
			} else {
				continue
			}

			spec, err := loadManifest(manifestPath, root.Source)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					logger.Warn("rejecting plugin",
						slog.String("path", manifestPath), slog.Any("error", err))
				}
				continue
			}
			if !allowed(spec.PluginID, allow, deny) {
				logger.Debug("plugin filtered out", slog.String("plugin", spec.PluginID))
				continue
			}
			if spec.Enabled != nil && !*spec.Enabled {
				continue
			}
			specs = append(specs, *spec)
		}
	}
	return specs
}

// loadManifest parses and validates one plugin.yaml.
func loadManifest(path string, source Source) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// strict top-level key check before the typed decode
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	for key := range raw {
		if !manifestKeys[key] {
			return nil, fmt.Errorf("unknown manifest key %q", key)
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	switch {
	case m.PluginID == "":
		return nil, fmt.Errorf("plugin_id is required")
	case m.Version == "":
		return nil, fmt.Errorf("version is required")
	case !ValidKind(m.Kind):
		return nil, fmt.Errorf("invalid kind %q", m.Kind)
	case len(m.Provides) == 0:
		return nil, fmt.Errorf("provides must list at least one effect")
	}

	for _, effectID := range m.Provides {
		tpl, ok := m.Effects[effectID]
		if !ok {
			return nil, fmt.Errorf("provided effect %q has no template", effectID)
		}
		if tpl.Template == "" {
			return nil, fmt.Errorf("effect %q has an empty template", effectID)
		}
		lower := strings.ToLower(tpl.Template)
		for _, tok := range forbiddenTokens {
			if strings.Contains(lower, tok) {
				return nil, fmt.Errorf("effect %q template uses forbidden construct %q", effectID, tok)
			}
		}
	}
	for alias, canonical := range m.Aliases {
		if _, ok := m.Effects[canonical]; !ok {
			return nil, fmt.Errorf("alias %q points to unknown effect %q", alias, canonical)
		}
	}

	return &Spec{Manifest: m, Source: source, Path: path}, nil
}

func allowed(id string, allow, deny []string) bool {
	for _, d := range deny {
		if d == id {
			return false
		}
	}
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if a == id {
			return true
		}
	}
	return false
}

// Install registers every effect of the discovered specs.
func (r *Registry) Install(specs []Spec) {
	for _, spec := range specs {
		for _, effectID := range spec.Provides {
			tpl := spec.Effects[effectID]
			r.Register(effectID, templateBuilder(tpl), spec.Kind, spec.Source, spec.PluginID)
		}
		for alias, canonical := range spec.Aliases {
			r.Alias(alias, canonical, spec.Source)
		}
	}
}

// templateBuilder substitutes {placeholders} from params, falling back to
// the template's declared defaults. Unresolved placeholders fail the build.
func templateBuilder(tpl EffectTemplate) Builder {
	return func(params map[string]any, _ float64) (string, error) {
		out := placeholderRe.ReplaceAllStringFunc(tpl.Template, func(m string) string {
			name := m[1 : len(m)-1]
			if v, ok := params[name]; ok {
				return fmt.Sprint(v)
			}
			if v, ok := tpl.Defaults[name]; ok {
				return fmt.Sprint(v)
			}
			return m
		})
		if rest := placeholderRe.FindString(out); rest != "" {
			return "", fmt.Errorf("unresolved template parameter %s", rest)
		}
		return out, nil
	}
}
