package process

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pty terminals are not supported on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	m := NewManager("/bin/sh", t.TempDir(), zerolog.Nop())
	t.Cleanup(m.DisposeAll)
	return m
}

func TestTerminal_SendTextReachesShell(t *testing.T) {
	m := newTestManager(t)

	term, err := m.CreateTerminal("htflow test", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, term.SendText("echo hello-from-pty"))

	out := term.(*Terminal).Output()
	assert.Eventually(t, func() bool {
		return strings.Contains(out.Content(), "hello-from-pty")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestTerminal_ShowMarksFocused(t *testing.T) {
	m := newTestManager(t)

	a, err := m.CreateTerminal("a", t.TempDir())
	require.NoError(t, err)
	b, err := m.CreateTerminal("b", t.TempDir())
	require.NoError(t, err)

	b.Show()
	a.Show()

	focused := ""
	for _, s := range m.List(0) {
		if s.Focused {
			focused = s.Name
		}
	}
	assert.Equal(t, "a", focused)
}

func TestTerminal_DisposeIsIdempotentAndForgets(t *testing.T) {
	m := newTestManager(t)

	term, err := m.CreateTerminal("gone", t.TempDir())
	require.NoError(t, err)
	require.Len(t, m.List(0), 1)

	assert.NoError(t, term.Dispose())
	assert.NoError(t, term.Dispose())
	assert.Empty(t, m.List(0))
	assert.ErrorIs(t, term.SendText("echo nope"), ErrTerminalExited)
	assert.ErrorIs(t, term.Interrupt(), ErrTerminalExited)
}

func TestTerminal_InterruptStopsForegroundJob(t *testing.T) {
	m := newTestManager(t)

	term, err := m.CreateTerminal("sleeper", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, term.SendText("sleep 30; echo slept"))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, term.Interrupt())
	require.NoError(t, term.SendText("echo after-interrupt"))

	out := term.(*Terminal).Output()
	assert.Eventually(t, func() bool {
		return hasLine(out, "after-interrupt")
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, hasLine(out, "slept"))
}

// hasLine reports whether the shell printed want on a line of its own,
// as opposed to echoing it back as part of typed input
func hasLine(out *OutputBuffer, want string) bool {
	for _, line := range strings.Split(out.Content(), "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

func TestCleanOutput(t *testing.T) {
	raw := []byte("\x1b[32mok\x1b[0m\r\nprogress 10%\rprogress 90%\x1b[2K\n")
	assert.Equal(t, "ok\nprogress 10%\nprogress 90%\n", string(CleanOutput(raw)))
}

func TestOutputBuffer_TailAndPartial(t *testing.T) {
	b := NewOutputBuffer(3)
	_, _ = b.Write([]byte("one\ntwo\nthree\nfour\n$ "))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"three", "four", "$ "}, b.Tail(3))
	assert.Equal(t, "two\nthree\nfour\n$ ", b.Content())

	b.Flush()
	assert.Equal(t, []string{"three", "four", "$ "}, b.Tail(10))
}
