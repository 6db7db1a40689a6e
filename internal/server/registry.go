package server

import (
	"sort"
	"sync"
	"time"

	"github.com/kimaguri/htflow-panel/internal/host"
)

// Origin records which surface asked for a server
type Origin int

const (
	OriginSidebar Origin = iota
	OriginBrowser
)

// String returns the wire label for the origin
func (o Origin) String() string {
	switch o {
	case OriginBrowser:
		return "browser"
	case OriginSidebar:
		return "sidebar"
	default:
		return "unknown"
	}
}

// RunningServer is one preview server started by the panel.
// Fields are fixed after creation; the registry owns Process.
type RunningServer struct {
	ID        string
	Port      int
	Mode      string
	Folder    string
	StartTime time.Time
	Origin    Origin
	Process   host.Terminal
}

// Info is the wire form of a running server
type Info struct {
	ID        string    `json:"id"`
	Port      int       `json:"port"`
	Mode      string    `json:"mode"`
	Folder    string    `json:"folder"`
	StartTime time.Time `json:"startTime"`
	Origin    string    `json:"origin"`
}

// Info returns the wire form of rs
func (rs *RunningServer) Info() Info {
	return Info{
		ID:        rs.ID,
		Port:      rs.Port,
		Mode:      rs.Mode,
		Folder:    rs.Folder,
		StartTime: rs.StartTime,
		Origin:    rs.Origin.String(),
	}
}

// Registry is the table of running servers keyed by server id.
//
// handles holds every process the registry owns, including ones whose entry
// is not recorded yet; an id present in servers is always present in handles.
// target, when non-empty, always names a key of servers.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*RunningServer
	handles map[string]host.Terminal
	target  string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]*RunningServer),
		handles: make(map[string]host.Terminal),
	}
}

// Track records a bare process handle for id before its entry exists
func (r *Registry) Track(id string, h host.Terminal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = h
}

// Add records rs. If another entry already serves the same (port, mode) it is
// removed and returned so the caller can dispose it: the most recent write wins.
func (r *Registry) Add(rs *RunningServer) (displaced *RunningServer, wasTarget bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(rs)
}

// Commit is Add for an id previously passed to Track. It records nothing and
// returns ok=false if the handle was taken in the meantime.
func (r *Registry) Commit(rs *RunningServer) (displaced *RunningServer, wasTarget, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, tracked := r.handles[rs.ID]; !tracked {
		return nil, false, false
	}
	displaced, wasTarget = r.addLocked(rs)
	return displaced, wasTarget, true
}

func (r *Registry) addLocked(rs *RunningServer) (displaced *RunningServer, wasTarget bool) {
	for id, other := range r.servers {
		if id != rs.ID && other.Port == rs.Port && other.Mode == rs.Mode {
			displaced = other
			wasTarget = r.removeLocked(id)
			break
		}
	}
	r.servers[rs.ID] = rs
	r.handles[rs.ID] = rs.Process
	return displaced, wasTarget
}

// Take removes id and its handle in one step. ok is false when neither an
// entry nor a handle was known.
func (r *Registry) Take(id string) (rs *RunningServer, h host.Terminal, wasTarget, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs = r.servers[id]
	h, hasHandle := r.handles[id]
	if rs == nil && !hasHandle {
		return nil, nil, false, false
	}
	if h == nil && rs != nil {
		h = rs.Process
	}
	wasTarget = r.removeLocked(id)
	return rs, h, wasTarget, true
}

// removeLocked deletes id and clears the target if it pointed at id
func (r *Registry) removeLocked(id string) (wasTarget bool) {
	delete(r.servers, id)
	delete(r.handles, id)
	if r.target == id {
		r.target = ""
		return true
	}
	return false
}

// Get returns the entry for id, or nil
func (r *Registry) Get(id string) *RunningServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.servers[id]
}

// FindByPort returns the first entry on port, restricted to mode when mode is non-empty
func (r *Registry) FindByPort(port int, mode string) *RunningServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rs := range r.servers {
		if rs.Port == port && (mode == "" || rs.Mode == mode) {
			return rs
		}
	}
	return nil
}

// List returns all entries ordered by start time
func (r *Registry) List() []*RunningServer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*RunningServer, 0, len(r.servers))
	for _, rs := range r.servers {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Len returns the number of recorded entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// HasHandle reports whether a process handle is known for id
func (r *Registry) HasHandle(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[id]
	return ok
}

// SetTarget marks id as the browser live-preview target. It refuses ids
// that have no entry.
func (r *Registry) SetTarget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[id]; !ok {
		return false
	}
	r.target = id
	return true
}

// Target returns the live-preview target id, or ""
func (r *Registry) Target() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.target
}

// Drain empties the registry and returns every handle it owned
func (r *Registry) Drain() map[string]host.Terminal {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := r.handles
	r.servers = make(map[string]*RunningServer)
	r.handles = make(map[string]host.Terminal)
	r.target = ""
	return handles
}
