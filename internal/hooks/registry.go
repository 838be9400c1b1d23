// Package hooks lets plugins inject HTML fragments into the host
// application's patient pages. Plugins register renderers against named
// slots; the host asks for a slot and receives the fragments of every
// registered plugin in priority order.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/careloop/patient-email-api/internal/obs"
)

// FragmentRenderer produces one HTML fragment for a slot. An empty string
// with a nil error means the plugin has nothing to show for this page.
type FragmentRenderer func(ctx context.Context, pc PageContext) (string, error)

type registration struct {
	pluginID string
	priority int
	seq      int
	render   FragmentRenderer
}

// Registry holds slot registrations. Safe for concurrent use; registration
// normally happens once at startup but nothing prevents later changes.
type Registry struct {
	mu    sync.RWMutex
	slots map[string][]registration
	seq   int
	log   zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{slots: make(map[string][]registration), log: log}
}

// Register binds a renderer to a slot. Registering the same slot and plugin
// id again replaces the previous renderer in place, keeping its position.
func (r *Registry) Register(slot, pluginID string, priority int, fn FragmentRenderer) error {
	if slot == "" {
		return fmt.Errorf("hooks: slot name is required")
	}
	if pluginID == "" {
		return fmt.Errorf("hooks: plugin id is required")
	}
	if fn == nil {
		return fmt.Errorf("hooks: renderer is required for slot %q", slot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.slots[slot]
	for i := range regs {
		if regs[i].pluginID == pluginID {
			regs[i].priority = priority
			regs[i].render = fn
			return nil
		}
	}
	r.seq++
	r.slots[slot] = append(regs, registration{
		pluginID: pluginID,
		priority: priority,
		seq:      r.seq,
		render:   fn,
	})
	return nil
}

// Render concatenates every fragment registered for a slot, lowest priority
// first, registration order breaking ties. A failing renderer contributes
// nothing; the failure is logged and counted so one bad plugin cannot take
// down the host page.
func (r *Registry) Render(ctx context.Context, slot string, pc PageContext) string {
	r.mu.RLock()
	regs := make([]registration, len(r.slots[slot]))
	copy(regs, r.slots[slot])
	r.mu.RUnlock()

	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority < regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})

	var b strings.Builder
	for _, reg := range regs {
		fragment, err := reg.render(ctx, pc)
		if err != nil {
			r.log.Error().Err(err).
				Str("slot", slot).
				Str("plugin", reg.pluginID).
				Msg("hook fragment render failed")
			countRender(slot, "error")
			continue
		}
		countRender(slot, "ok")
		b.WriteString(fragment)
	}
	return b.String()
}

func countRender(slot, result string) {
	if obs.HookRenderTotal != nil {
		obs.HookRenderTotal.WithLabelValues(slot, result).Inc()
	}
}
