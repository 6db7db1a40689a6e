// Package preview keeps the embedded browser panel's port-forward table in
// step with the servers it is asked to show.
package preview

import (
	"sync"

	"github.com/rs/zerolog"
)

// PortMapping forwards a port seen inside the panel to a port on the host
type PortMapping struct {
	WebviewPort       int `json:"webviewPort"`
	ExtensionHostPort int `json:"extensionHostPort"`
}

// Panel is an open browser panel whose forwarding table can be edited
type Panel interface {
	PortMappings() []PortMapping
	SetPortMappings([]PortMapping)
}

// Mapper adds port mappings to whichever browser panel is currently open
type Mapper struct {
	mu    sync.Mutex
	panel func() Panel
	log   zerolog.Logger
}

// NewMapper creates a mapper. panel returns nil while no browser panel is open.
func NewMapper(panel func() Panel, log zerolog.Logger) *Mapper {
	return &Mapper{panel: panel, log: log.With().Str("component", "preview").Logger()}
}

// EnsureMapping forwards port to itself on the open panel. It does nothing
// when no panel is open or the port is already mapped, and never removes
// existing entries. It reports whether a mapping was added.
func (m *Mapper) EnsureMapping(port int) bool {
	if m == nil || m.panel == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.panel()
	if p == nil {
		return false
	}
	current := p.PortMappings()
	for _, pm := range current {
		if pm.WebviewPort == port {
			return false
		}
	}
	next := make([]PortMapping, len(current), len(current)+1)
	copy(next, current)
	next = append(next, PortMapping{WebviewPort: port, ExtensionHostPort: port})
	p.SetPortMappings(next)
	m.log.Debug().Int("port", port).Int("mappings", len(next)).Msg("port mapped")
	return true
}
