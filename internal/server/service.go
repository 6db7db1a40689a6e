// Package server owns the preview servers the panel starts: a registry keyed
// by server id plus the launcher that spawns, reuses and stops them.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kimaguri/htflow-panel/internal/host"
	"github.com/kimaguri/htflow-panel/internal/htflow"
	"github.com/kimaguri/htflow-panel/internal/workspace"
)

var (
	// ErrNoWorkspace is returned when a server is requested with no project root open
	ErrNoWorkspace = errors.New("no workspace folder is open")
	// ErrSpawnFailed wraps failures to start the server's terminal process
	ErrSpawnFailed = errors.New("failed to start server process")
)

// DefaultOpenDelay is how long a sidebar-started server gets before it is opened in the browser
const DefaultOpenDelay = 3 * time.Second

const statusDuration = 5 * time.Second

// Events receives server lifecycle notifications
type Events interface {
	ServerStarted(id string, info Info)
	ServerStopped(id string, port int)
	LivePreviewStarted(id string, port int, mode string)
	LivePreviewStopped()
}

// PortMapper makes a port reachable from the embedded browser surface
type PortMapper interface {
	EnsureMapping(port int) bool
}

// Options configures a Service. Only Terminals and Workspace are required.
type Options struct {
	Tool      func() string
	Terminals host.TerminalFactory
	Workspace func() (root string, ok bool)
	Notifier  host.Notifier
	Opener    host.Opener
	Events    Events
	Ports     PortMapper

	// OpenDelay defaults to DefaultOpenDelay. NoBrowserOpen disables the deferred open.
	OpenDelay     time.Duration
	NoBrowserOpen func() bool

	AfterFunc func(time.Duration, func())
	Now       func() time.Time
	Log       zerolog.Logger
}

// StartRequest describes a server start
type StartRequest struct {
	Port         int
	ExplicitPort bool
	Mode         string
	Folder       string
	Origin       Origin
}

// Started is the outcome of Start
type Started struct {
	ID     string
	Server *RunningServer
	Reused bool
}

// Service starts and stops preview servers. One instance lives for a panel session.
type Service struct {
	reg       *Registry
	flight    singleflight.Group
	tool      func() string
	terminals host.TerminalFactory
	workspace func() (string, bool)
	notify    host.Notifier
	opener    host.Opener
	events    Events
	ports     PortMapper
	openDelay time.Duration
	noOpen    func() bool
	afterFunc func(time.Duration, func())
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a service with an empty registry
func New(opts Options) *Service {
	s := &Service{
		reg:       NewRegistry(),
		tool:      opts.Tool,
		terminals: opts.Terminals,
		workspace: opts.Workspace,
		notify:    opts.Notifier,
		opener:    opts.Opener,
		events:    opts.Events,
		ports:     opts.Ports,
		openDelay: opts.OpenDelay,
		noOpen:    opts.NoBrowserOpen,
		afterFunc: opts.AfterFunc,
		now:       opts.Now,
		log:       opts.Log.With().Str("component", "servers").Logger(),
	}
	if s.tool == nil {
		s.tool = func() string { return htflow.DefaultTool }
	}
	if s.workspace == nil {
		s.workspace = func() (string, bool) { return "", false }
	}
	if s.notify == nil {
		s.notify = nopNotifier{}
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.openDelay <= 0 {
		s.openDelay = DefaultOpenDelay
	}
	if s.noOpen == nil {
		s.noOpen = func() bool { return false }
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Registry exposes the underlying registry for read access
func (s *Service) Registry() *Registry {
	return s.reg
}

// NewServerID builds an id from mode, port and launch time plus a random suffix
func NewServerID(mode string, port int, at time.Time) string {
	return fmt.Sprintf("%s-%d-%d-%s", mode, port, at.UnixMilli(), uuid.NewString()[:8])
}

// LocalURL returns the browser URL for a local port
func LocalURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

// Start returns the server serving (port, mode), spawning one if none exists.
// Concurrent identical requests share a single spawn.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Started, error) {
	mode := NormalizeMode(req.Mode)
	port := NormalizePort(req.Port, mode)
	explicit := req.ExplicitPort && ValidPort(req.Port)

	if rs := s.reg.FindByPort(port, mode); rs != nil {
		return s.reuse(rs, req.Origin), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	led := false
	v, err, _ := s.flight.Do(fmt.Sprintf("%d/%s", port, mode), func() (any, error) {
		led = true
		return s.launch(port, mode, req.Folder, req.Origin, explicit)
	})
	if err != nil {
		return nil, err
	}
	st := v.(*Started)
	if !led || st.Reused {
		return s.reuse(st.Server, req.Origin), nil
	}
	return st, nil
}

func (s *Service) launch(port int, mode, folder string, origin Origin, explicit bool) (*Started, error) {
	// A flight that finished just before this one may have recorded the pair
	if rs := s.reg.FindByPort(port, mode); rs != nil {
		return &Started{ID: rs.ID, Server: rs, Reused: true}, nil
	}

	root, ok := s.workspace()
	if !ok || root == "" {
		return nil, ErrNoWorkspace
	}
	folder, err := workspace.Within(root, folder)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := NewServerID(mode, port, now)
	term, err := s.terminals.CreateTerminal(htflow.TerminalName(mode, port), root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	s.reg.Track(id, term)
	term.Show()

	cmdline := htflow.Serve(s.tool(), mode, folder, port, explicit)
	if err := term.SendText(cmdline); err != nil {
		if _, h, _, ok := s.reg.Take(id); ok {
			s.dispose(id, h)
		}
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	rs := &RunningServer{
		ID:        id,
		Port:      port,
		Mode:      mode,
		Folder:    folder,
		StartTime: now,
		Origin:    origin,
		Process:   term,
	}
	displaced, wasTarget, ok := s.reg.Commit(rs)
	if !ok {
		// stopped while the command was being sent
		return nil, fmt.Errorf("%w: server %s was stopped during launch", ErrSpawnFailed, id)
	}
	if displaced != nil {
		s.log.Warn().Str("id", displaced.ID).Int("port", port).Str("mode", mode).Msg("replacing server for the same port and mode")
		s.dispose(displaced.ID, displaced.Process)
		s.events.ServerStopped(displaced.ID, displaced.Port)
		if wasTarget {
			s.events.LivePreviewStopped()
		}
	}

	s.log.Info().Str("id", id).Int("port", port).Str("mode", mode).Str("folder", folder).Str("cmd", cmdline).Msg("server started")
	s.events.ServerStarted(id, rs.Info())

	url := LocalURL(port)
	if origin == OriginBrowser {
		s.promote(rs)
		s.notify.Status(fmt.Sprintf("Live preview starting on %s", url), statusDuration)
	} else {
		s.notify.Info(fmt.Sprintf("htflow %s server starting on %s", mode, url))
		if s.opener != nil && !s.noOpen() {
			// Not cancelled by Stop: a server stopped inside the window still gets opened
			s.afterFunc(s.openDelay, func() { s.openInBrowser(url) })
		}
	}
	return &Started{ID: id, Server: rs}, nil
}

// reuse brings an existing server forward instead of spawning a duplicate
func (s *Service) reuse(rs *RunningServer, origin Origin) *Started {
	if rs.Process != nil {
		rs.Process.Show()
	}
	url := LocalURL(rs.Port)
	if origin == OriginBrowser {
		s.promote(rs)
		s.notify.Status(fmt.Sprintf("Live preview already running on %s", url), statusDuration)
	} else {
		s.notify.Info(fmt.Sprintf("htflow %s server already running on %s", rs.Mode, url))
	}
	return &Started{ID: rs.ID, Server: rs, Reused: true}
}

// promote makes rs the browser live-preview target and forwards its port
func (s *Service) promote(rs *RunningServer) {
	if !s.reg.SetTarget(rs.ID) {
		return
	}
	if s.ports != nil {
		s.ports.EnsureMapping(rs.Port)
	}
	s.events.LivePreviewStarted(rs.ID, rs.Port, rs.Mode)
}

func (s *Service) openInBrowser(url string) {
	if err := s.opener.OpenExternal(url); err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("failed to open browser")
	}
}

// Stop interrupts and disposes the server's process and forgets it.
// It returns false, with no side effects, when id is unknown.
func (s *Service) Stop(id string, portHint int) bool {
	rs, h, wasTarget, ok := s.reg.Take(id)
	if !ok {
		s.log.Debug().Str("id", id).Msg("stop requested for unknown server")
		return false
	}

	port := portHint
	if rs != nil {
		port = rs.Port
	}
	s.dispose(id, h)
	s.log.Info().Str("id", id).Int("port", port).Msg("server stopped")

	s.events.ServerStopped(id, port)
	if wasTarget {
		s.events.LivePreviewStopped()
	}
	return true
}

// dispose is best effort: failures are logged and never propagated
func (s *Service) dispose(id string, h host.Terminal) {
	if h == nil {
		return
	}
	if err := h.Interrupt(); err != nil {
		s.log.Debug().Err(err).Str("id", id).Msg("interrupt failed")
	}
	if err := h.Dispose(); err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("failed to dispose server process")
	}
}

// FindByPort returns the first server on port, filtered by mode when non-empty
func (s *Service) FindByPort(port int, mode string) *RunningServer {
	if mode != "" {
		mode = NormalizeMode(mode)
	}
	return s.reg.FindByPort(port, mode)
}

// Get returns the server for id, or nil
func (s *Service) Get(id string) *RunningServer {
	return s.reg.Get(id)
}

// List returns every running server, oldest first
func (s *Service) List() []Info {
	servers := s.reg.List()
	out := make([]Info, len(servers))
	for i, rs := range servers {
		out[i] = rs.Info()
	}
	return out
}

// Target returns the browser live-preview target id, or ""
func (s *Service) Target() string {
	return s.reg.Target()
}

// MapTarget forwards the live-preview target's port to the browser panel.
// A recreated panel starts without mappings, so this runs whenever a browser
// surface attaches. It reports false when there is no target.
func (s *Service) MapTarget() bool {
	rs := s.reg.Get(s.reg.Target())
	if rs == nil || s.ports == nil {
		return false
	}
	return s.ports.EnsureMapping(rs.Port)
}

// Dispose tears down every server. A process refusing to die does not
// block the others.
func (s *Service) Dispose() {
	handles := s.reg.Drain()
	for id, h := range handles {
		s.dispose(id, h)
	}
	if len(handles) > 0 {
		s.log.Info().Int("count", len(handles)).Msg("disposed all servers")
	}
}

type nopNotifier struct{}

func (nopNotifier) Status(string, time.Duration) {}
func (nopNotifier) Info(string)                  {}
func (nopNotifier) Error(string)                 {}

type nopEvents struct{}

func (nopEvents) ServerStarted(string, Info)             {}
func (nopEvents) ServerStopped(string, int)              {}
func (nopEvents) LivePreviewStarted(string, int, string) {}
func (nopEvents) LivePreviewStopped()                    {}
