// ABOUTME: Registered-agent identity: descriptor, capability list, and status enum.
// ABOUTME: Capability matching is case-insensitive containment in either direction.

package agent

import (
	"strings"
	"time"
)

// Status is an agent's lifecycle state as tracked by the registry.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusBusy         Status = "busy"
	StatusError        Status = "error"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
)

// Capability is a named operation an agent claims to support.
type Capability struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Matches reports whether this capability satisfies a requested capability
// string. The rule is intentionally loose: case-insensitive containment in
// either direction.
func (c Capability) Matches(requested string) bool {
	if requested == "" {
		return false
	}
	name := strings.ToLower(c.Name)
	want := strings.ToLower(requested)
	return strings.Contains(name, want) || strings.Contains(want, name)
}

// Descriptor identifies a registered agent and its declared capabilities.
type Descriptor struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Version      string       `json:"version,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	Status       Status       `json:"status"`
	LastSeen     time.Time    `json:"lastSeen"`
}

// HasCapability reports whether any declared capability matches the
// requested capability string.
func (d *Descriptor) HasCapability(requested string) bool {
	for _, c := range d.Capabilities {
		if c.Matches(requested) {
			return true
		}
	}
	return false
}

// Clone returns a copy safe to hand to callers.
func (d *Descriptor) Clone() *Descriptor {
	out := *d
	out.Capabilities = make([]Capability, len(d.Capabilities))
	copy(out.Capabilities, d.Capabilities)
	return &out
}
