// ABOUTME: Registry of known agents and their declared capabilities and status.
// ABOUTME: Tracks descriptors independently of whether a live connection exists.

package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Connections is the view of the protocol engine the registry needs: live
// connection lookups and the graceful-disconnect signal.
type Connections interface {
	IsOnline(agentID string) bool
	SignalDisconnect(agentID string)
}

// Registry is the set of known agents. It is safe for concurrent use;
// registration and unregistration of the same id are serialized, last
// writer wins.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Descriptor
	conns  Connections
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for the default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: make(map[string]*Descriptor),
		logger: logger.With("component", "registry"),
	}
}

// SetConnections wires the protocol engine in after construction. The
// registry works without it; last-seen refresh and disconnect signalling
// are then skipped.
func (r *Registry) SetConnections(c Connections) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = c
}

// Register inserts or replaces a descriptor by id and stamps last-seen.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("register: descriptor is required")
	}
	if d.ID == "" {
		return fmt.Errorf("register: agent id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := d.Clone()
	stored.LastSeen = time.Now().UTC()
	if stored.Status == "" {
		stored.Status = StatusUnknown
	}
	_, replaced := r.agents[stored.ID]
	r.agents[stored.ID] = stored

	r.logger.Info("agent registered",
		"agent_id", stored.ID,
		"name", stored.Name,
		"capabilities", len(stored.Capabilities),
		"replaced", replaced,
		"total_agents", len(r.agents),
	)
	return nil
}

// Unregister removes an agent and signals it to shut down gracefully if a
// live connection exists. Unknown ids are a logged no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	conns := r.conns
	_, known := r.agents[id]
	if known {
		delete(r.agents, id)
	}
	total := len(r.agents)
	r.mu.Unlock()

	if !known {
		r.logger.Warn("unregister of unknown agent", "agent_id", id)
		return
	}

	if conns != nil && conns.IsOnline(id) {
		conns.SignalDisconnect(id)
	}

	r.logger.Info("agent unregistered", "agent_id", id, "total_agents", total)
}

// Get returns a copy of one descriptor.
func (r *Registry) Get(id string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// List returns a snapshot of all known descriptors sorted by id, not a
// live view. Last-seen is refreshed for any agent the engine reports
// online.
func (r *Registry) List() []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	out := make([]*Descriptor, 0, len(r.agents))
	for _, d := range r.agents {
		if r.conns != nil && r.conns.IsOnline(d.ID) {
			d.LastSeen = now
		}
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByCapability returns Ready agents matching the requested capability,
// sorted by id so selection is deterministic.
func (r *Registry) FindByCapability(requested string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, d := range r.agents {
		if d.Status == StatusReady && d.HasCapability(requested) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus updates one agent's status and last-seen. Unknown ids are
// ignored.
func (r *Registry) SetStatus(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.agents[id]; ok {
		d.Status = status
		d.LastSeen = time.Now().UTC()
	}
}
