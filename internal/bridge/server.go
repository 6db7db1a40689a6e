// Package bridge connects the panel core to its UI surfaces over HTTP:
// one WebSocket endpoint per surface kind, a JSON API and the browser
// panel's preview proxy.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/process"
	"github.com/kimaguri/htflow-panel/internal/router"
	"github.com/kimaguri/htflow-panel/internal/server"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendQueue      = 256
	shutdownWait   = 5 * time.Second
	terminalTail   = 20
)

var (
	errSurfaceClosed = errors.New("surface closed")
	errQueueFull     = errors.New("surface send queue full")
)

// TerminalLister reports the terminals the host has spawned
type TerminalLister interface {
	List(tail int) []process.Snapshot
}

// Options configures a Server
type Options struct {
	Router    *router.Router
	Hub       *router.Hub
	Servers   *server.Service
	Panel     *BrowserPanel
	Terminals TerminalLister
	Log       zerolog.Logger
}

// Server serves the surfaces and the API
type Server struct {
	router    *router.Router
	hub       *router.Hub
	servers   *server.Service
	panel     *BrowserPanel
	terminals TerminalLister
	upgrader  websocket.Upgrader
	log       zerolog.Logger

	base     context.Context
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closing  bool
	inflight sync.WaitGroup
}

// New creates a server. Run or Handler put it to use.
func New(opts Options) *Server {
	s := &Server{
		router:    opts.Router,
		hub:       opts.Hub,
		servers:   opts.Servers,
		panel:     opts.Panel,
		terminals: opts.Terminals,
		log:       opts.Log.With().Str("component", "bridge").Logger(),
		base:      context.Background(),
		conns:     make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     localOrigin,
	}
	return s
}

// localOrigin accepts pages served from this machine and editor webviews.
// The request itself must also be addressed to a loopback host, so a page
// that rebinds its own name to 127.0.0.1 is refused.
func localOrigin(r *http.Request) bool {
	if !loopbackHost(r.Host) {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "vscode-webview" {
		return true
	}
	return loopbackHost(u.Host)
}

// loopbackHost reports whether a host or host:port names this machine
func loopbackHost(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = strings.Trim(hostport, "[]")
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// loopbackOnly refuses requests whose Host header is not a loopback name
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !loopbackHost(r.Host) {
			http.Error(w, "forbidden host", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{kind}", s.serveWS)
	mux.HandleFunc("GET /api/servers", s.apiServers)
	mux.HandleFunc("GET /api/terminals", s.apiTerminals)
	if s.panel != nil {
		mux.Handle(previewPrefix, s.panel)
	}
	return loopbackOnly(mux)
}

// Run listens on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes every
// surface and waits for in-flight messages.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.base = ctx
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	s.inflight.Wait()
	return err
}

// closeAll stops accepting messages and closes every surface connection
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for c := range s.conns {
		c.Close()
	}
}

// track registers an in-flight message unless the server is shutting down
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	kind, ok := router.ParseKind(r.PathValue("kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	surf := newSurface(kind, conn)
	browser := kind == router.KindBrowser && s.panel != nil
	if browser {
		s.panel.Attach()
		// a recreated panel starts empty; forward the live preview again
		s.servers.MapTarget()
	}
	s.hub.Attach(surf)
	go surf.writePump()

	s.readLoop(surf)

	s.hub.Detach(surf)
	surf.close()
	if browser {
		s.panel.Detach()
	}
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) readLoop(surf *surface) {
	c := surf.conn
	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Str("surface", string(surf.kind)).Msg("surface disconnected")
			}
			return
		}
		// handlers may block on a spawn or a captured run; the surface keeps reading
		if !s.track() {
			return
		}
		go func() {
			defer s.inflight.Done()
			s.router.HandleRaw(s.base, surf, data)
		}()
	}
}

func (s *Server) apiServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"servers": s.servers.List(),
		"target":  s.servers.Target(),
	})
}

func (s *Server) apiTerminals(w http.ResponseWriter, _ *http.Request) {
	var list []process.Snapshot
	if s.terminals != nil {
		list = s.terminals.List(terminalTail)
	}
	if list == nil {
		list = []process.Snapshot{}
	}
	writeJSON(w, map[string]any{"terminals": list})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// surface is one WebSocket connection acting as a router.Surface
type surface struct {
	kind      router.Kind
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSurface(kind router.Kind, conn *websocket.Conn) *surface {
	return &surface{
		kind: kind,
		conn: conn,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
}

func (s *surface) Kind() router.Kind { return s.kind }

// Post queues msg without blocking on the peer
func (s *surface) Post(msg router.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return errSurfaceClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return errSurfaceClosed
	default:
		return errQueueFull
	}
}

func (s *surface) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *surface) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}
