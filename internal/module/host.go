package module

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/schema"
	"github.com/jhacksman/feedeater/internal/settings"
	"github.com/jhacksman/feedeater/internal/store"
)

// Instance is a loaded module: its manifest plus the schema manager bound
// to its namespace. It lives for the process's lifetime (spec.md §3
// "Lifecycle. Modules are created at process start, remain for process
// lifetime").
type Instance struct {
	Manifest Manifest
	Schema   *schema.Manager
}

// Host discovers modules, loads their manifests, and owns their settings
// and schema managers for the process lifetime. It is the "module
// lifecycle controller" of spec.md §2.
type Host struct {
	st       *store.Store
	settings *settings.Registry
	log      *zap.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewHost constructs an empty Host bound to st/settingsRegistry.
func NewHost(st *store.Store, settingsRegistry *settings.Registry, log *zap.Logger) *Host {
	return &Host{
		st:        st,
		settings:  settingsRegistry,
		log:       log,
		instances: make(map[string]*Instance),
	}
}

// Register loads manifest m into the host, failing if its name is already
// registered (manifests are read once per process lifetime).
func (h *Host) Register(m Manifest) (*Instance, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.instances[m.Name]; exists {
		return nil, fmt.Errorf("module: %s already registered", m.Name)
	}

	inst := &Instance{
		Manifest: m,
		Schema:   schema.New(h.st, m.Name, h.log.With(zap.String("module", m.Name))),
	}
	h.instances[m.Name] = inst
	h.log.Info("module registered", zap.String("module", m.Name), zap.String("version", m.Version))
	return inst, nil
}

// Get returns the loaded instance for name, or false if unregistered.
func (h *Host) Get(name string) (*Instance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	inst, ok := h.instances[name]
	return inst, ok
}

// All returns every loaded manifest, used to serve GET /api/modules.
func (h *Host) All() []Manifest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Manifest, 0, len(h.instances))
	for _, inst := range h.instances {
		out = append(out, inst.Manifest)
	}
	return out
}

// Values returns the merged string-typed settings for module, combining
// manifest-declared defaults with any stored overrides (spec.md §3
// "Setting... Defaults from manifest apply when no row exists").
func (h *Host) Values(ctx context.Context, module string) (Values, error) {
	inst, ok := h.Get(module)
	if !ok {
		return nil, fmt.Errorf("module: %s not registered", module)
	}

	out := make(Values, len(inst.Manifest.Settings))
	for _, s := range inst.Manifest.Settings {
		out[s.Key] = s.Default
	}
	for _, s := range inst.Manifest.Settings {
		value, _, found, err := h.settings.GetOne(ctx, module, s.Key)
		if err != nil {
			return nil, err
		}
		if found {
			out[s.Key] = value
		} else if s.Required && s.Default == "" {
			return nil, &ParseError{Module: module, Key: s.Key, Reason: "required and no default configured"}
		}
	}
	return out, nil
}

// EnsureSchemas runs EnsureSchema for every registered module, each with
// its configured embedding dimension.
func (h *Host) EnsureSchemas(ctx context.Context, embedDimOf func(module string) int) error {
	h.mu.RLock()
	instances := make([]*Instance, 0, len(h.instances))
	for _, inst := range h.instances {
		instances = append(instances, inst)
	}
	h.mu.RUnlock()

	for _, inst := range instances {
		dim := embedDimOf(inst.Manifest.Name)
		if err := inst.Schema.EnsureSchema(ctx, dim); err != nil {
			return fmt.Errorf("module: ensure schema for %s: %w", inst.Manifest.Name, err)
		}
	}
	return nil
}
