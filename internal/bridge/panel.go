package bridge

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/preview"
)

// previewPrefix is where the browser panel reaches forwarded ports
const previewPrefix = "/preview/"

// BrowserPanel is the embedded browser surface's port-forward table. The
// panel exists while at least one browser connection is open; closing the
// last one destroys it together with its mappings.
type BrowserPanel struct {
	mu       sync.RWMutex
	browsers int
	mappings []preview.PortMapping
	log      zerolog.Logger
}

// NewBrowserPanel creates a closed panel
func NewBrowserPanel(log zerolog.Logger) *BrowserPanel {
	return &BrowserPanel{log: log.With().Str("component", "panel").Logger()}
}

// Attach records a browser connection; the first one creates the panel
func (p *BrowserPanel) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.browsers++
}

// Detach drops a browser connection. When the last one goes the panel is
// destroyed with every mapping and Detach returns true.
func (p *BrowserPanel) Detach() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browsers == 0 {
		return false
	}
	p.browsers--
	if p.browsers > 0 {
		return false
	}
	p.mappings = nil
	p.log.Debug().Msg("browser panel closed")
	return true
}

// Current returns the panel when it is open, or nil. It is the provider
// given to preview.NewMapper.
func (p *BrowserPanel) Current() preview.Panel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.browsers == 0 {
		return nil
	}
	return p
}

// PortMappings implements preview.Panel
func (p *BrowserPanel) PortMappings() []preview.PortMapping {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]preview.PortMapping(nil), p.mappings...)
}

// SetPortMappings implements preview.Panel
func (p *BrowserPanel) SetPortMappings(m []preview.PortMapping) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browsers == 0 {
		return
	}
	p.mappings = append([]preview.PortMapping(nil), m...)
}

// hostPort returns the host port forwarded for a panel port
func (p *BrowserPanel) hostPort(port int) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.mappings {
		if m.WebviewPort == port {
			return m.ExtensionHostPort, true
		}
	}
	return 0, false
}

// ServeHTTP proxies /preview/{port}/... to the mapped localhost port
func (p *BrowserPanel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, previewPrefix)
	portStr, path, _ := strings.Cut(rest, "/")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	target, ok := p.hostPort(port)
	if !ok {
		http.Error(w, fmt.Sprintf("port %d is not mapped", port), http.StatusNotFound)
		return
	}

	upstream := &url.URL{Scheme: "http", Host: "127.0.0.1:" + strconv.Itoa(target)}
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = "/" + path
			pr.Out.URL.RawPath = ""
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.log.Debug().Err(err).Int("port", target).Msg("preview upstream unavailable")
			http.Error(w, "preview server unavailable", http.StatusBadGateway)
		},
	}
	proxy.ServeHTTP(w, r)
}
