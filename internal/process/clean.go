package process

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// CleanOutput strips escape sequences from raw terminal output and folds
// carriage returns so progress bars read as separate lines.
func CleanOutput(data []byte) []byte {
	s := ansi.Strip(string(data))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(s)
}
