// Package host declares the primitives the panel core consumes from the
// runtime hosting it: terminals, notifications and external openers.
package host

import "time"

// Terminal is a visible shell session owned by whoever created it.
type Terminal interface {
	// Name returns the display name given at creation.
	Name() string
	// Show brings the terminal to the foreground.
	Show()
	// SendText writes a command line to the terminal followed by a newline.
	SendText(text string) error
	// Interrupt sends Ctrl-C to the foreground job.
	Interrupt() error
	// Dispose terminates the session. Safe to call more than once.
	Dispose() error
}

// TerminalFactory spawns terminals rooted at a working directory.
type TerminalFactory interface {
	CreateTerminal(name, cwd string) (Terminal, error)
}

// Notifier surfaces messages to the user.
type Notifier interface {
	// Status shows transient text that disappears after d.
	Status(text string, d time.Duration)
	Info(text string)
	Error(text string)
}

// Opener hands URLs and files to the desktop.
type Opener interface {
	OpenExternal(url string) error
	OpenFile(path string) error
}
