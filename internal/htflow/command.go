package htflow

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// DefaultTool is the htflow binary name used when none is configured
const DefaultTool = "htflow"

// Server modes understood by the htflow CLI
const (
	ModeDev   = "dev"
	ModeStart = "start"
)

// Init returns `<tool> init`
func Init(tool string) string {
	return tool + " init"
}

// Validate returns `<tool> validate`, or `<tool> validate <path>` with the
// path quoted for the shell when one is given
func Validate(tool, path string) string {
	if path == "" {
		return tool + " validate"
	}
	return tool + " validate " + arg(path)
}

// Build returns `<tool> build`
func Build(tool string) string {
	return tool + " build"
}

// Version returns `<tool> --version`
func Version(tool string) string {
	return tool + " --version"
}

// Audit returns `<tool> audit [<folder>]`
func Audit(tool, folder string) string {
	return join(tool, "audit", folderArg(folder))
}

// AuditHTML returns `<tool> audit --html`
func AuditHTML(tool string) string {
	return tool + " audit --html"
}

// MCPInstall returns `<tool> mcp-install`
func MCPInstall(tool string) string { return tool + " mcp-install" }

// MCPUninstall returns `<tool> mcp-uninstall`
func MCPUninstall(tool string) string { return tool + " mcp-uninstall" }

// MCPStatus returns `<tool> mcp-status`
func MCPStatus(tool string) string { return tool + " mcp-status" }

// Serve returns the command line that starts a preview server.
//
// Without an explicit port the short form is used and htflow picks its own
// default port: `dev [folder]` for dev, `serve [folder]` for start, and
// `serve <mode> [folder]` for anything else. With an explicit port the long
// form `serve <mode> [folder] -p <port>` is used.
func Serve(tool, mode, folder string, port int, explicitPort bool) string {
	if explicitPort {
		return join(tool, "serve", arg(mode), folderArg(folder), "-p", fmt.Sprintf("%d", port))
	}
	switch mode {
	case ModeDev:
		return join(tool, "dev", folderArg(folder))
	case ModeStart:
		return join(tool, "serve", folderArg(folder))
	default:
		return join(tool, "serve", arg(mode), folderArg(folder))
	}
}

// NpmInstall returns the global install command for the htflow package
func NpmInstall(pkg string) string { return "npm install -g " + arg(pkg) }

// NpmUpdate returns the global update command for the htflow package
func NpmUpdate(pkg string) string { return "npm update -g " + arg(pkg) }

// NpmUninstall returns the global uninstall command for the htflow package
func NpmUninstall(pkg string) string { return "npm uninstall -g " + arg(pkg) }

// TerminalName generates the terminal title for a server
func TerminalName(mode string, port int) string {
	return fmt.Sprintf("htflow %s :%d", sanitize(mode), port)
}

// folderArg quotes a folder as one shell word; the workspace root itself is omitted
func folderArg(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" || folder == "." {
		return ""
	}
	return arg(folder)
}

// arg quotes s as a single shell word. Words starting with # are quoted too,
// the shell would read them as a comment.
func arg(s string) string {
	if s == "" {
		return ""
	}
	q := shellquote.Join(s)
	if strings.HasPrefix(q, "#") {
		q = `\` + q
	}
	return q
}

// join concatenates non-empty parts with single spaces
func join(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// sanitize replaces path separators and spaces for use in terminal titles
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '-'
		}
		return r
	}, s)
}
