package router

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/executor"
	"github.com/kimaguri/htflow-panel/internal/host"
	"github.com/kimaguri/htflow-panel/internal/server"
)

type fakeSurface struct {
	kind Kind
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *fakeSurface) Kind() Kind { return s.kind }

func (s *fakeSurface) Post(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *fakeSurface) all() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func (s *fakeSurface) named(command string) []Message {
	var out []Message
	for _, m := range s.all() {
		if m.Command == command {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSurface) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

type fakeTerm struct {
	mu       sync.Mutex
	name     string
	sent     []string
	disposed bool
}

func (t *fakeTerm) Name() string { return t.name }
func (t *fakeTerm) Show()        {}

func (t *fakeTerm) SendText(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return errors.New("terminal has exited")
	}
	t.sent = append(t.sent, s)
	return nil
}

func (t *fakeTerm) Interrupt() error { return nil }

func (t *fakeTerm) Dispose() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	return nil
}

type fakeTerms struct {
	mu    sync.Mutex
	terms []*fakeTerm
}

func (f *fakeTerms) CreateTerminal(name, _ string) (host.Terminal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTerm{name: name}
	f.terms = append(f.terms, t)
	return t, nil
}

// sent returns every line typed into any terminal, in creation order
func (f *fakeTerms) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.terms {
		t.mu.Lock()
		out = append(out, t.sent...)
		t.mu.Unlock()
	}
	return out
}

type memSettings struct {
	mu      sync.Mutex
	tool    string
	pkg     string
	updates map[string]any
	err     error
}

func (s *memSettings) Tool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

func (s *memSettings) Package() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pkg
}

func (s *memSettings) Update(setting string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = make(map[string]any)
	}
	s.updates[setting] = value
	return nil
}

type recOpener struct {
	mu    sync.Mutex
	urls  []string
	files []string
}

func (o *recOpener) OpenExternal(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *recOpener) OpenFile(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, path)
	return nil
}

type memClipboard struct {
	text string
}

func (c *memClipboard) Copy(text string) error {
	c.text = text
	return nil
}

type rig struct {
	r        *Router
	hub      *Hub
	svc      *server.Service
	terms    *fakeTerms
	settings *memSettings
	opener   *recOpener
	clip     *memClipboard
	sidebar  *fakeSurface
	panel    *fakeSurface
	browser  *fakeSurface
}

func newRig(t *testing.T, root string) *rig {
	t.Helper()
	log := zerolog.Nop()
	rg := &rig{
		hub:      NewHub(log),
		terms:    &fakeTerms{},
		settings: &memSettings{tool: "htflow", pkg: "htflow"},
		opener:   &recOpener{},
		clip:     &memClipboard{},
		sidebar:  &fakeSurface{kind: KindSidebar},
		panel:    &fakeSurface{kind: KindPanel},
		browser:  &fakeSurface{kind: KindBrowser},
	}
	workspaceFn := func() (string, bool) { return root, root != "" }
	rg.svc = server.New(server.Options{
		Tool:          rg.settings.Tool,
		Terminals:     rg.terms,
		Workspace:     workspaceFn,
		Notifier:      rg.hub,
		Opener:        rg.opener,
		Events:        rg.hub,
		NoBrowserOpen: func() bool { return true },
		Log:           log,
	})
	rg.r = New(Deps{
		Servers:   rg.svc,
		Exec:      executor.New(executor.Options{Terminals: rg.terms, NoEcho: true, Log: log}),
		Hub:       rg.hub,
		Settings:  rg.settings,
		Opener:    rg.opener,
		Clipboard: rg.clip,
		Workspace: workspaceFn,
		PanelURL:  "http://127.0.0.1:7357/browser",
		Log:       log,
	})
	rg.hub.Attach(rg.sidebar)
	rg.hub.Attach(rg.panel)
	rg.hub.Attach(rg.browser)
	t.Cleanup(rg.svc.Dispose)
	return rg
}
