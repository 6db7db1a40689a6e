package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/host"
)

// ErrTerminalExited is returned when writing to a terminal whose shell has exited
var ErrTerminalExited = errors.New("terminal has exited")

// disposeTimeout bounds the wait between SIGTERM and SIGKILL
const disposeTimeout = 5 * time.Second

// Terminal is a shell session running under a PTY
type Terminal struct {
	id        int
	name      string
	cwd       string
	cmd       *exec.Cmd
	ptyFile   *os.File
	out       *OutputBuffer
	logFile   *os.File
	startedAt time.Time
	done      chan struct{} // closed when the shell exits

	mgr         *Manager
	disposeOnce sync.Once
	disposeErr  error
	log         zerolog.Logger
}

// Snapshot describes a terminal for listing
type Snapshot struct {
	Name      string    `json:"name"`
	Cwd       string    `json:"cwd"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	Focused   bool      `json:"focused"`
	StartedAt time.Time `json:"startedAt"`
	Tail      []string  `json:"tail,omitempty"`
}

// Manager spawns and tracks PTY terminals. It implements host.TerminalFactory.
type Manager struct {
	mu        sync.RWMutex
	terminals map[int]*Terminal
	nextID    int
	focused   int
	shell     string
	logsDir   string
	log       zerolog.Logger
}

var _ host.TerminalFactory = (*Manager)(nil)

// NewManager creates a manager that runs shell for every terminal.
// Transcripts are written to logsDir when it is non-empty.
func NewManager(shell, logsDir string, log zerolog.Logger) *Manager {
	if shell == "" {
		shell = DefaultShell()
	}
	return &Manager{
		terminals: make(map[int]*Terminal),
		shell:     shell,
		logsDir:   logsDir,
		log:       log.With().Str("component", "terminals").Logger(),
	}
}

// DefaultShell returns $SHELL, falling back to /bin/sh
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// CreateTerminal starts a new shell in cwd
func (m *Manager) CreateTerminal(name, cwd string) (host.Terminal, error) {
	cmd := exec.Command(m.shell)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptyFile, err := startWithPTY(cmd, defaultPTYRows, defaultPTYCols)
	if err != nil {
		return nil, fmt.Errorf("failed to start terminal %q: %w", name, err)
	}

	m.mu.Lock()
	m.nextID++
	t := &Terminal{
		id:        m.nextID,
		name:      name,
		cwd:       cwd,
		cmd:       cmd,
		ptyFile:   ptyFile,
		out:       NewOutputBuffer(DefaultMaxLines),
		startedAt: time.Now(),
		done:      make(chan struct{}),
		mgr:       m,
	}
	t.log = m.log.With().Str("terminal", name).Int("pid", cmd.Process.Pid).Logger()
	m.terminals[t.id] = t
	m.mu.Unlock()

	t.logFile = m.openTranscript(t.id, name)

	go t.readPTY()
	go t.waitForExit()

	t.log.Debug().Str("cwd", cwd).Msg("terminal started")
	return t, nil
}

// openTranscript creates the transcript file, or returns nil if transcripts are disabled
func (m *Manager) openTranscript(id int, name string) *os.File {
	if m.logsDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.logsDir, 0o755); err != nil {
		m.log.Warn().Err(err).Msg("failed to create logs dir")
		return nil
	}
	file := fmt.Sprintf("%d-%s.log", id, strings.NewReplacer(" ", "_", ":", "", "/", "-").Replace(name))
	f, err := os.Create(filepath.Join(m.logsDir, file))
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to create transcript")
		return nil
	}
	return f
}

// List returns a snapshot of every terminal, oldest first, with tail lines of output
func (m *Manager) List(tail int) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.terminals))
	for id, t := range m.terminals {
		out = append(out, Snapshot{
			Name:      t.name,
			Cwd:       t.cwd,
			PID:       t.cmd.Process.Pid,
			Running:   t.running(),
			Focused:   id == m.focused,
			StartedAt: t.startedAt,
			Tail:      t.out.Tail(tail),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// DisposeAll terminates every terminal. Failures are logged and do not stop the sweep.
func (m *Manager) DisposeAll() {
	m.mu.RLock()
	all := make([]*Terminal, 0, len(m.terminals))
	for _, t := range m.terminals {
		all = append(all, t)
	}
	m.mu.RUnlock()

	for _, t := range all {
		if err := t.Dispose(); err != nil {
			t.log.Warn().Err(err).Msg("failed to dispose terminal")
		}
	}
}

func (m *Manager) forget(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.terminals, id)
	if m.focused == id {
		m.focused = 0
	}
}

// Name returns the terminal title
func (t *Terminal) Name() string {
	return t.name
}

// Output returns the terminal's output buffer
func (t *Terminal) Output() *OutputBuffer {
	return t.out
}

// Show marks the terminal as the focused one
func (t *Terminal) Show() {
	t.mgr.mu.Lock()
	if _, ok := t.mgr.terminals[t.id]; ok {
		t.mgr.focused = t.id
	}
	t.mgr.mu.Unlock()
}

// SendText writes a command line to the shell
func (t *Terminal) SendText(text string) error {
	if !t.running() {
		return ErrTerminalExited
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := t.ptyFile.Write([]byte(text))
	return err
}

// Interrupt sends Ctrl-C through the PTY so the line discipline signals the foreground job
func (t *Terminal) Interrupt() error {
	if !t.running() {
		return ErrTerminalExited
	}
	_, err := t.ptyFile.Write([]byte{ctrlC})
	return err
}

// Dispose signals the terminal's process group, then SIGKILLs it after a timeout
func (t *Terminal) Dispose() error {
	t.disposeOnce.Do(func() {
		t.disposeErr = t.terminate()
		t.mgr.forget(t.id)
	})
	return t.disposeErr
}

func (t *Terminal) terminate() error {
	if !t.running() {
		return nil
	}
	pid := t.cmd.Process.Pid

	// Interactive shells ignore SIGTERM, so hang up first like a closed window would
	for _, sig := range []syscall.Signal{syscall.SIGHUP, syscall.SIGTERM} {
		if pgid, err := syscall.Getpgid(pid); err == nil {
			_ = syscall.Kill(-pgid, sig)
		} else {
			_ = t.cmd.Process.Signal(sig)
		}
	}

	select {
	case <-t.done:
		return nil
	case <-time.After(disposeTimeout):
	}

	var err error
	if pgid, gerr := syscall.Getpgid(pid); gerr == nil {
		err = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		err = t.cmd.Process.Kill()
	}
	if err != nil && IsProcessAlive(pid) {
		return fmt.Errorf("kill terminal %q: %w", t.name, err)
	}
	<-t.done
	return nil
}

func (t *Terminal) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// readPTY copies raw output to the transcript and cleaned output to the buffer
func (t *Terminal) readPTY() {
	buf := make([]byte, 4096)
	for {
		n, err := t.ptyFile.Read(buf)
		if n > 0 {
			data := buf[:n]
			if t.logFile != nil {
				_, _ = t.logFile.Write(data)
			}
			_, _ = t.out.Write(CleanOutput(data))
		}
		if err != nil {
			return
		}
	}
}

func (t *Terminal) waitForExit() {
	err := t.cmd.Wait()

	// Give the reader a moment to drain what is left in the PTY
	time.Sleep(100 * time.Millisecond)
	t.ptyFile.Close()
	if t.logFile != nil {
		t.logFile.Close()
	}
	t.out.Flush()
	close(t.done)

	if err != nil {
		t.log.Debug().Err(err).Msg("terminal exited")
	} else {
		t.log.Debug().Msg("terminal exited")
	}
	t.mgr.forget(t.id)
}

// IsProcessAlive checks if a process with the given PID is still running.
// Signal 0 checks for existence without delivering anything.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
