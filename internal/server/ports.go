package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/kimaguri/htflow-panel/internal/htflow"
)

// Default preview ports per mode
const (
	DefaultDevPort    = 3050
	DefaultStartPort  = 3051
	DefaultCustomPort = 3000

	minPort = 1
	maxPort = 65535
)

// ModeProd is accepted as an alias of htflow.ModeStart
const ModeProd = "prod"

// NormalizeMode maps aliases onto the modes htflow understands and defaults to dev
func NormalizeMode(mode string) string {
	mode = strings.TrimSpace(mode)
	switch mode {
	case "":
		return htflow.ModeDev
	case ModeProd:
		return htflow.ModeStart
	default:
		return mode
	}
}

// DefaultPort returns the preview port used when a request carries none
func DefaultPort(mode string) int {
	switch NormalizeMode(mode) {
	case htflow.ModeDev:
		return DefaultDevPort
	case htflow.ModeStart:
		return DefaultStartPort
	default:
		return DefaultCustomPort
	}
}

// ValidPort reports whether port is a bindable TCP port
func ValidPort(port int) bool {
	return port >= minPort && port <= maxPort
}

// NormalizePort returns port if it lies in [1, 65535], else the mode's default
func NormalizePort(port int, mode string) int {
	if ValidPort(port) {
		return port
	}
	return DefaultPort(mode)
}

// ParsePort extracts a usable port from a loosely typed value as found in
// decoded JSON (numbers arrive as float64, some surfaces send strings).
// ok is false when the value is missing, empty, fractional or out of range.
func ParsePort(v any) (port int, ok bool) {
	switch p := v.(type) {
	case int:
		port = p
	case int64:
		if p > math.MaxInt32 || p < math.MinInt32 {
			return 0, false
		}
		port = int(p)
	case float64:
		if p != math.Trunc(p) || p > math.MaxInt32 || p < math.MinInt32 {
			return 0, false
		}
		port = int(p)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, false
		}
		port = n
	default:
		return 0, false
	}
	if !ValidPort(port) {
		return 0, false
	}
	return port, true
}
