// Package plugins implements the effect registry. Builtin effects ship as Go
// builders; external plugins contribute declarative filter templates from
// plugin.yaml manifests. Conflicting registrations resolve by source
// priority: user overrides package overrides builtin.
package plugins

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zundamotion/zundamotion/internal/models"
)

// Kind classifies what a plugin's effects attach to.
type Kind string

const (
	KindOverlay    Kind = "overlay"
	KindSubtitle   Kind = "subtitle"
	KindAudio      Kind = "audio"
	KindTransition Kind = "transition"
)

// ValidKind reports whether k is a recognized plugin kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindOverlay, KindSubtitle, KindAudio, KindTransition:
		return true
	}
	return false
}

// Source identifies where a plugin came from and doubles as its priority.
type Source int

const (
	SourceBuiltin Source = 1
	SourcePackage Source = 2
	SourceUser    Source = 3
)

func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourcePackage:
		return "package"
	case SourceUser:
		return "user"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// Builder produces a filter fragment from effect parameters. duration is
// the clip length in seconds; builders that scale an envelope over the clip
// consume it, the rest ignore it. Zero means the caller has no clip scope.
type Builder func(params map[string]any, duration float64) (string, error)

// registration ties a builder to its origin for priority comparison.
type registration struct {
	builder  Builder
	source   Source
	pluginID string
	kind     Kind
}

// Registry maps effect ids (and aliases) to builders. Safe for concurrent
// lookup after registration.
type Registry struct {
	mu      sync.RWMutex
	effects map[string]registration
	aliases map[string]string
	logger  *slog.Logger
}

// NewRegistry returns a registry pre-populated with the builtin effects.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		effects: map[string]registration{},
		aliases: map[string]string{},
		logger:  logger.With(slog.String("component", "plugins")),
	}
	registerBuiltins(r)
	return r
}

// Register installs a builder for effectID. A lower or equal priority than
// the existing registration is ignored.
func (r *Registry) Register(effectID string, builder Builder, kind Kind, source Source, pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.effects[effectID]; ok {
		if source <= existing.source {
			r.logger.Debug("keeping existing effect registration",
				slog.String("effect", effectID),
				slog.String("existing", existing.source.String()),
				slog.String("ignored", source.String()),
			)
			return
		}
		r.logger.Info("effect overridden",
			slog.String("effect", effectID),
			slog.String("by", pluginID),
			slog.String("source", source.String()),
		)
	}
	r.effects[effectID] = registration{builder: builder, source: source, pluginID: pluginID, kind: kind}
}

// Alias maps name to the canonical effect id under the same priority rules.
func (r *Registry) Alias(name, canonical string, source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.aliases[name]; ok {
		if reg, regOK := r.effects[existing]; regOK && source <= reg.source {
			return
		}
	}
	r.aliases[name] = canonical
}

// lookup resolves an effect name through aliases to its registration.
func (r *Registry) lookup(name string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	reg, ok := r.effects[name]
	return reg, ok
}

// Effects lists registered effect ids, sorted, for diagnostics.
func (r *Registry) Effects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.effects))
	for id := range r.effects {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ResolveOverlayEffects turns an effect list into filter fragments in input
// order. Unknown effects and failing builders are logged and skipped; a
// panicking builder never takes the render down.
func (r *Registry) ResolveOverlayEffects(effects []models.Effect, duration float64) []string {
	var out []string
	for _, e := range effects {
		reg, ok := r.lookup(e.Type)
		if !ok {
			r.logger.Warn("unknown effect, skipping", slog.String("effect", e.Type))
			continue
		}
		frag, err := r.invoke(reg, e, duration)
		if err != nil {
			r.logger.Warn("effect builder failed, skipping",
				slog.String("effect", e.Type),
				slog.String("plugin", reg.pluginID),
				slog.Any("error", err),
			)
			continue
		}
		if frag != "" {
			out = append(out, frag)
		}
	}
	return out
}

func (r *Registry) invoke(reg registration, e models.Effect, duration float64) (frag string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("builder panicked: %v", rec)
		}
	}()
	return reg.builder(e.Params, duration)
}
