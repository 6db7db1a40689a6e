package server

import (
	"errors"
	"sync"
	"time"

	"github.com/kimaguri/htflow-panel/internal/host"
)

type fakeTerminal struct {
	mu          sync.Mutex
	name        string
	cwd         string
	sent        []string
	shown       int
	interrupts  int
	disposes    int
	disposeErr  error
	sendErr     error
	disposeHook func()
}

func (t *fakeTerminal) Name() string { return t.name }

func (t *fakeTerminal) Show() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shown++
}

func (t *fakeTerminal) SendText(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, text)
	return nil
}

func (t *fakeTerminal) Interrupt() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interrupts++
	return nil
}

func (t *fakeTerminal) Dispose() error {
	t.mu.Lock()
	t.disposes++
	hook := t.disposeHook
	err := t.disposeErr
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (t *fakeTerminal) snapshot() (sent []string, shown, interrupts, disposes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...), t.shown, t.interrupts, t.disposes
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeTerminal
	err     error
	gate    chan struct{} // when non-nil, CreateTerminal blocks until closed
	next    func(*fakeTerminal)
}

func (f *fakeFactory) CreateTerminal(name, cwd string) (host.Terminal, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTerminal{name: name, cwd: cwd}
	if f.next != nil {
		f.next(t)
	}
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) last() *fakeTerminal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type note struct {
	kind string
	text string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) add(kind, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{kind, text})
}

func (n *fakeNotifier) Status(text string, _ time.Duration) { n.add("status", text) }
func (n *fakeNotifier) Info(text string)                    { n.add("info", text) }
func (n *fakeNotifier) Error(text string)                   { n.add("error", text) }

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, nt := range n.notes {
		out = append(out, nt.kind)
	}
	return out
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *fakeOpener) OpenExternal(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)
	return nil
}

func (o *fakeOpener) OpenFile(string) error { return errors.New("not supported") }

func (o *fakeOpener) urls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

type event struct {
	kind string
	id   string
	port int
	mode string
	info Info
}

type recordingEvents struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingEvents) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEvents) ServerStarted(id string, info Info) {
	r.add(event{kind: "serverStarted", id: id, port: info.Port, mode: info.Mode, info: info})
}

func (r *recordingEvents) ServerStopped(id string, port int) {
	r.add(event{kind: "serverStopped", id: id, port: port})
}

func (r *recordingEvents) LivePreviewStarted(id string, port int, mode string) {
	r.add(event{kind: "liveServerStarted", id: id, port: port, mode: mode})
}

func (r *recordingEvents) LivePreviewStopped() {
	r.add(event{kind: "liveServerStopped"})
}

func (r *recordingEvents) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recordingEvents) ofKind(kind string) []event {
	var out []event
	for _, e := range r.all() {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakePorts struct {
	mu    sync.Mutex
	ports []int
}

func (p *fakePorts) EnsureMapping(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ports = append(p.ports, port)
	return true
}

func (p *fakePorts) mapped() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.ports...)
}

// manualTimers captures deferred callbacks so tests decide when they fire
type manualTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, f)
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	funcs := m.funcs
	m.funcs = nil
	m.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

func (m *manualTimers) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.funcs)
}

type harness struct {
	svc     *Service
	factory *fakeFactory
	notify  *fakeNotifier
	opener  *fakeOpener
	events  *recordingEvents
	ports   *fakePorts
	timers  *manualTimers
}

func newHarness(root string) *harness {
	h := &harness{
		factory: &fakeFactory{},
		notify:  &fakeNotifier{},
		opener:  &fakeOpener{},
		events:  &recordingEvents{},
		ports:   &fakePorts{},
		timers:  &manualTimers{},
	}
	h.svc = New(Options{
		Tool:      func() string { return "htflow" },
		Terminals: h.factory,
		Workspace: func() (string, bool) { return root, root != "" },
		Notifier:  h.notify,
		Opener:    h.opener,
		Events:    h.events,
		Ports:     h.ports,
		AfterFunc: h.timers.AfterFunc,
	})
	return h
}
