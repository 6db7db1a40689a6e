package router

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/server"
)

// Kind identifies a UI surface
type Kind string

const (
	KindSidebar Kind = "sidebar"
	KindPanel   Kind = "panel"
	KindBrowser Kind = "browser"
)

// ParseKind validates a surface name
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindSidebar, KindPanel, KindBrowser:
		return k, true
	default:
		return "", false
	}
}

// Surface is a connected UI view. Post must not block on a slow peer.
type Surface interface {
	Kind() Kind
	Post(Message) error
}

// Hub tracks the surfaces that currently exist and fans messages out to
// them. Publishing to a kind with no live surface is a silent no-op.
//
// Hub implements server.Events and host.Notifier.
type Hub struct {
	mu       sync.RWMutex
	surfaces map[Surface]struct{}
	log      zerolog.Logger
}

// NewHub creates an empty hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		surfaces: make(map[Surface]struct{}),
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// Attach registers a surface
func (h *Hub) Attach(s Surface) {
	h.mu.Lock()
	h.surfaces[s] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("surface", string(s.Kind())).Msg("surface attached")
}

// Detach forgets a surface. It returns how many surfaces of the same kind remain.
func (h *Hub) Detach(s Surface) int {
	h.mu.Lock()
	delete(h.surfaces, s)
	n := h.countLocked(s.Kind())
	h.mu.Unlock()
	h.log.Debug().Str("surface", string(s.Kind())).Int("remaining", n).Msg("surface detached")
	return n
}

// Count returns the number of live surfaces of kind
func (h *Hub) Count(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked(kind)
}

func (h *Hub) countLocked(kind Kind) int {
	n := 0
	for s := range h.surfaces {
		if s.Kind() == kind {
			n++
		}
	}
	return n
}

func (h *Hub) targets(kind Kind) []Surface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Surface, 0, len(h.surfaces))
	for s := range h.surfaces {
		if kind == "" || s.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}

// Broadcast sends msg to every live surface
func (h *Hub) Broadcast(msg Message) {
	h.deliver(h.targets(""), msg)
}

// SendTo sends msg to the live surfaces of one kind
func (h *Hub) SendTo(kind Kind, msg Message) {
	h.deliver(h.targets(kind), msg)
}

func (h *Hub) deliver(to []Surface, msg Message) {
	for _, s := range to {
		if err := s.Post(msg); err != nil {
			h.log.Warn().Err(err).Str("surface", string(s.Kind())).Str("msg", msg.Command).Msg("failed to deliver message")
		}
	}
}

// ServerStarted implements server.Events
func (h *Hub) ServerStarted(id string, info server.Info) {
	h.Broadcast(serverStarted(id, info))
}

// ServerStopped implements server.Events
func (h *Hub) ServerStopped(id string, port int) {
	h.Broadcast(serverStopped(id, port))
}

// LivePreviewStarted implements server.Events
func (h *Hub) LivePreviewStarted(id string, port int, mode string) {
	h.SendTo(KindBrowser, liveServerStarted(id, port, mode))
}

// LivePreviewStopped implements server.Events
func (h *Hub) LivePreviewStopped() {
	h.SendTo(KindBrowser, liveServerStopped())
}

// FileChanged broadcasts a watched file write
func (h *Hub) FileChanged(relPath, name string) {
	h.Broadcast(FileChanged(relPath, name))
}

// Status shows transient text on every surface
func (h *Hub) Status(text string, d time.Duration) {
	h.log.Debug().Str("text", text).Msg("status")
	h.Broadcast(notification("status", text, d.Milliseconds()))
}

// Info shows an informational message on every surface
func (h *Hub) Info(text string) {
	h.log.Info().Msg(text)
	h.Broadcast(notification("info", text, 0))
}

// Error shows an error message on every surface
func (h *Hub) Error(text string) {
	h.log.Error().Msg(text)
	h.Broadcast(notification("error", text, 0))
}
