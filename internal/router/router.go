// Package router dispatches messages from every UI surface through one
// command table and publishes lifecycle messages back to them.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/executor"
	"github.com/kimaguri/htflow-panel/internal/host"
	"github.com/kimaguri/htflow-panel/internal/htflow"
	"github.com/kimaguri/htflow-panel/internal/server"
)

// ErrServerNotFound is reported when a stop names no known server
var ErrServerNotFound = errors.New("server not found")

// Settings is the live configuration the handlers read and edit
type Settings interface {
	Tool() string
	Package() string
	Update(setting string, value any) error
}

// Clipboard copies text for the user
type Clipboard interface {
	Copy(text string) error
}

// Deps are the collaborators a Router dispatches to. Servers, Exec and Hub are required.
type Deps struct {
	Servers   *server.Service
	Exec      *executor.Executor
	Hub       *Hub
	Settings  Settings
	Notifier  host.Notifier
	Opener    host.Opener
	Clipboard Clipboard
	Workspace func() (root string, ok bool)
	// PanelURL is opened by openBrowserPanel
	PanelURL string
	Log      zerolog.Logger
}

// Call is one inbound message and the surface it came from
type Call struct {
	From Surface
	Msg  Message
}

// Origin returns the server origin implied by the sending surface
func (c *Call) Origin() server.Origin {
	if c.From != nil && c.From.Kind() == KindBrowser {
		return server.OriginBrowser
	}
	return server.OriginSidebar
}

// Handler processes one command
type Handler func(ctx context.Context, c *Call) error

// Router owns the single command table shared by every surface
type Router struct {
	Deps
	table  map[string]Handler
	notify host.Notifier
	log    zerolog.Logger
}

// New builds a router and its command table
func New(d Deps) *Router {
	r := &Router{
		Deps:   d,
		notify: d.Notifier,
		log:    d.Log.With().Str("component", "router").Logger(),
	}
	if r.notify == nil {
		r.notify = d.Hub
	}
	if r.Workspace == nil {
		r.Workspace = func() (string, bool) { return "", false }
	}
	if r.Settings == nil {
		r.Settings = staticSettings{}
	}
	r.table = r.routes()
	return r
}

// Commands returns every command name the table handles
func (r *Router) Commands() []string {
	out := make([]string, 0, len(r.table))
	for name := range r.table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HandleRaw decodes and handles one wire message
func (r *Router) HandleRaw(ctx context.Context, from Surface, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		r.log.Warn().Err(err).Msg("dropping malformed message")
		return
	}
	r.Handle(ctx, from, msg)
}

// Handle dispatches msg. Failures and panics stop here: they are logged and
// shown to the user, and never reach the surface's read loop.
func (r *Router) Handle(ctx context.Context, from Surface, msg Message) {
	c := &Call{From: from, Msg: msg}
	defer func() {
		if p := recover(); p != nil {
			r.fail(c, fmt.Errorf("internal error: %v", p))
		}
	}()

	h, ok := r.table[msg.Command]
	if !ok {
		r.log.Debug().Str("msg", msg.Command).Msg("unhandled command")
		r.reply(c, ack(msg.Command))
		return
	}
	if err := h(ctx, c); err != nil {
		r.fail(c, err)
	}
}

// dispatch re-enters the table under a different command name
func (r *Router) dispatch(ctx context.Context, c *Call, command string) error {
	h, ok := r.table[command]
	if !ok {
		r.reply(c, ack(command))
		return nil
	}
	return h(ctx, &Call{From: c.From, Msg: Message{Command: command, Payload: c.Msg.Payload}})
}

func (r *Router) fail(c *Call, err error) {
	r.log.Error().Err(err).Str("msg", c.Msg.Command).Msg("command failed")
	r.notify.Error(userMessage(c.Msg.Command, err))
	if isLiveServerCommand(c.Msg.Command) {
		r.Hub.SendTo(KindBrowser, liveServerError(err))
	}
}

func (r *Router) reply(c *Call, msg Message) {
	if c.From == nil {
		return
	}
	if err := c.From.Post(msg); err != nil {
		r.log.Warn().Err(err).Str("msg", msg.Command).Msg("failed to reply")
	}
}

func isLiveServerCommand(command string) bool {
	return command == "startLiveServer" || command == "stopLiveServer"
}

func userMessage(command string, err error) string {
	switch {
	case errors.Is(err, server.ErrNoWorkspace):
		return "Please open a workspace folder first"
	case errors.Is(err, ErrServerNotFound):
		return "Server not found"
	}
	name := strings.TrimPrefix(command, "htflow.")
	return fmt.Sprintf("Failed to run %s: %v", name, err)
}

type staticSettings struct{}

func (staticSettings) Tool() string             { return htflow.DefaultTool }
func (staticSettings) Package() string          { return htflow.DefaultTool }
func (staticSettings) Update(string, any) error { return errors.New("settings are read-only") }
