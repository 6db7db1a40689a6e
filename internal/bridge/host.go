package bridge

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/rs/zerolog"
)

// Desktop hands URLs and files to the operating system. It implements
// host.Opener and router.Clipboard.
type Desktop struct {
	// Terminal receives the OSC52 copy sequence, os.Stderr by default
	Terminal io.Writer

	start func(name string, args ...string) error
	write func(string) error
	log   zerolog.Logger
}

// NewDesktop creates a desktop bound to the current platform
func NewDesktop(log zerolog.Logger) *Desktop {
	return &Desktop{
		Terminal: os.Stderr,
		start: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
		write: clipboard.WriteAll,
		log:   log.With().Str("component", "desktop").Logger(),
	}
}

// openCommand returns the platform launcher for a URL or file
func openCommand(target string) (string, []string, error) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "cmd", []string{"/c", "start", "", target}, nil
	default:
		return "", nil, fmt.Errorf("cannot open %s on %s", target, runtime.GOOS)
	}
}

func (d *Desktop) open(target string) error {
	name, args, err := openCommand(target)
	if err != nil {
		return err
	}
	if err := d.start(name, args...); err != nil {
		d.log.Warn().Err(err).Str("target", target).Msg("failed to open, please open manually")
		return fmt.Errorf("open %s: %w", target, err)
	}
	d.log.Debug().Str("target", target).Msg("opened")
	return nil
}

// OpenExternal opens url in the default browser
func (d *Desktop) OpenExternal(url string) error {
	return d.open(url)
}

// OpenFile opens path with its default application
func (d *Desktop) OpenFile(path string) error {
	return d.open(path)
}

// Copy puts text on the clipboard. The OSC52 sequence reaches the user's
// terminal even over SSH, so a failing native clipboard is not an error.
func (d *Desktop) Copy(text string) error {
	if d.Terminal != nil {
		if _, err := osc52.New(text).WriteTo(d.Terminal); err != nil {
			d.log.Debug().Err(err).Msg("osc52 write failed")
		}
	}
	if err := d.write(text); err != nil {
		d.log.Debug().Err(err).Msg("native clipboard unavailable")
	}
	return nil
}
