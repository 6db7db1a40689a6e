package process

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

const (
	defaultPTYRows uint16 = 30
	defaultPTYCols uint16 = 120
)

// ctrlC is the byte a terminal line discipline turns into SIGINT
const ctrlC = 0x03

// startWithPTY starts a process with a pseudo-terminal.
// creack/pty sets Setsid=true internally, so the shell leads its own
// process group and Dispose can signal the whole group.
func startWithPTY(cmd *exec.Cmd, rows, cols uint16) (*os.File, error) {
	return pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
}

