// Package executor runs one-shot htflow commands, either captured for display
// in a UI surface or typed into a visible terminal.
package executor

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/host"
	"github.com/kimaguri/htflow-panel/internal/process"
)

// NoOutput is reported when a successful command printed nothing
const NoOutput = "Command completed with no output"

// DefaultMaxOutput is the per-stream capture ceiling
const DefaultMaxOutput = 64 << 20

// SharedTerminalName names the terminal reused by RunInTerminal
const SharedTerminalName = "htflow"

// Result is the outcome of a captured run. A failed command is reported
// here, not as an error.
type Result struct {
	Command  string
	Output   string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Success  bool
}

// Options configures an Executor
type Options struct {
	// Shell runs the command string, "sh" by default ("cmd" on Windows)
	Shell     string
	Terminals host.TerminalFactory
	MaxOutput int
	// NoEcho disables the visible terminal opened next to every captured run
	NoEcho bool
	Log    zerolog.Logger
}

// Executor runs commands on behalf of the message router
type Executor struct {
	shell     string
	terminals host.TerminalFactory
	maxOutput int
	noEcho    bool
	log       zerolog.Logger

	mu     sync.Mutex
	shared host.Terminal
	echoes sync.WaitGroup
}

// New creates an executor
func New(opts Options) *Executor {
	e := &Executor{
		shell:     opts.Shell,
		terminals: opts.Terminals,
		maxOutput: opts.MaxOutput,
		noEcho:    opts.NoEcho,
		log:       opts.Log.With().Str("component", "executor").Logger(),
	}
	if e.shell == "" {
		e.shell = defaultShell()
	}
	if e.maxOutput <= 0 {
		e.maxOutput = DefaultMaxOutput
	}
	return e
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "sh"
}

func (e *Executor) shellArgs(command string) []string {
	if strings.EqualFold(e.shell, "cmd") || strings.HasSuffix(strings.ToLower(e.shell), "cmd.exe") {
		return []string{"/C", command}
	}
	return []string{"-c", command}
}

// RunCaptured runs command in cwd and collects its output. A terminal running
// the same command is opened alongside; the two never wait on each other.
func (e *Executor) RunCaptured(ctx context.Context, command, cwd string) Result {
	if !e.noEcho && e.terminals != nil {
		e.echoes.Add(1)
		go func() {
			defer e.echoes.Done()
			e.echo(command, cwd)
		}()
	}

	start := time.Now()
	stdout := &limitedBuffer{max: e.maxOutput}
	stderr := &limitedBuffer{max: e.maxOutput}

	cmd := exec.CommandContext(ctx, e.shell, e.shellArgs(command)...)
	cmd.Dir = cwd
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()

	res := Result{
		Command:  command,
		Stdout:   clean(stdout.String()),
		Stderr:   clean(stderr.String()),
		Duration: time.Since(start),
	}
	if stdout.truncated || stderr.truncated {
		e.log.Warn().Str("cmd", command).Int("limit", e.maxOutput).Msg("command output truncated")
	}

	if err == nil {
		res.Success = true
		res.Output = firstNonEmpty(res.Stdout, res.Stderr, NoOutput)
		e.log.Debug().Str("cmd", command).Dur("duration", res.Duration).Msg("command finished")
		return res
	}

	res.ExitCode = 1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		res.ExitCode = exitErr.ExitCode()
	}
	res.Output = firstNonEmpty(res.Stdout, res.Stderr, err.Error())
	e.log.Warn().Err(err).Str("cmd", command).Int("exit_code", res.ExitCode).Msg("command failed")
	return res
}

// echo shows the command running in its own terminal
func (e *Executor) echo(command, cwd string) {
	term, err := e.terminals.CreateTerminal(SharedTerminalName+": "+command, cwd)
	if err != nil {
		e.log.Warn().Err(err).Str("cmd", command).Msg("failed to open echo terminal")
		return
	}
	term.Show()
	if err := term.SendText(command); err != nil {
		e.log.Warn().Err(err).Str("cmd", command).Msg("failed to echo command")
	}
}

// Wait blocks until every pending terminal echo has been dispatched
func (e *Executor) Wait() {
	e.echoes.Wait()
}

// RunInTerminal types command into the shared htflow terminal, creating it
// on first use and again after it has been closed.
func (e *Executor) RunInTerminal(command, cwd string) error {
	if e.terminals == nil {
		return errors.New("no terminal factory configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shared != nil {
		e.shared.Show()
		err := e.shared.SendText(command)
		if err == nil {
			return nil
		}
		e.log.Debug().Err(err).Msg("shared terminal gone, recreating")
		_ = e.shared.Dispose()
		e.shared = nil
	}

	term, err := e.terminals.CreateTerminal(SharedTerminalName, cwd)
	if err != nil {
		return err
	}
	e.shared = term
	term.Show()
	return term.SendText(command)
}

func clean(s string) string {
	return string(process.CleanOutput([]byte(s)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// limitedBuffer keeps the first max bytes written and silently drops the rest
type limitedBuffer struct {
	buf       strings.Builder
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
