package process

import (
	"strings"
	"sync"
)

// DefaultMaxLines is the maximum number of lines kept per terminal
const DefaultMaxLines = 5000

// OutputBuffer keeps the most recent lines a terminal printed.
// It implements io.Writer so the PTY reader can write into it directly.
type OutputBuffer struct {
	mu       sync.RWMutex
	lines    []string
	maxLines int
	partial  string // text after the last newline
}

// NewOutputBuffer creates a buffer holding at most maxLines lines
func NewOutputBuffer(maxLines int) *OutputBuffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &OutputBuffer{
		lines:    make([]string, 0, 128),
		maxLines: maxLines,
	}
}

// Write splits p on newlines and appends complete lines.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parts := strings.Split(b.partial+string(p), "\n")
	for _, line := range parts[:len(parts)-1] {
		b.appendLine(line)
	}
	b.partial = parts[len(parts)-1]
	return len(p), nil
}

// Flush turns a pending partial line into a complete one
func (b *OutputBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.partial != "" {
		b.appendLine(b.partial)
		b.partial = ""
	}
}

// appendLine must be called with the lock held
func (b *OutputBuffer) appendLine(line string) {
	if len(b.lines) >= b.maxLines {
		n := copy(b.lines, b.lines[1:])
		b.lines = b.lines[:n]
	}
	b.lines = append(b.lines, line)
}

// Tail returns up to n trailing lines, including an unterminated prompt line
func (b *OutputBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	all := b.lines
	if b.partial != "" {
		all = append(all[:len(all):len(all)], b.partial)
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	copy(out, all[len(all)-n:])
	return out
}

// Content returns everything buffered joined with newlines
func (b *OutputBuffer) Content() string {
	return strings.Join(b.Tail(b.maxLines+1), "\n")
}

// Len returns the number of complete lines
func (b *OutputBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}
