package router

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kimaguri/htflow-panel/internal/htflow"
	"github.com/kimaguri/htflow-panel/internal/server"
	"github.com/kimaguri/htflow-panel/internal/workspace"
)

// ModeCustom is the mode used by htflow.serve.custom when none is given
const ModeCustom = "custom"

// panelSuffix marks the captured variant of a one-shot command
const panelSuffix = "ForPanel"

const copiedStatus = 3 * time.Second

// toolAliases maps toolbar tool names that are not command names
var toolAliases = map[string]string{
	"dev":    "htflow.serve.dev",
	"serve":  "htflow.serve.dev",
	"prod":   "htflow.serve.prod",
	"start":  "htflow.serve.prod",
	"custom": "htflow.serve.custom",
	"stop":   "stopLiveServer",
}

func (r *Router) routes() map[string]Handler {
	t := map[string]Handler{
		"startLiveServer":     r.startLiveServer,
		"stopLiveServer":      r.stopLiveServer,
		"stopServer":          r.stopServer,
		"htflow.serve.dev":    r.serve(htflow.ModeDev),
		"htflow.serve.prod":   r.serve(server.ModeProd),
		"htflow.serve.custom": r.serveCustom,
		"openFile":            r.openFile,
		"openUrl":             r.openURL,
		"openExternal":        r.openURL,
		"openIndexInBrowser":  r.openIndexInBrowser,
		"validateFile":        r.validateFile,
		"settingChange":       r.settingChange,
		"toolAction":          r.toolAction,
		"refreshWorkspace":    r.refreshWorkspace,
		"ready":               r.ready,
		"openBrowserPanel":    r.openBrowserPanel,
		"copyUrl":             r.copyURL,
		"listServers":         r.listServers,
	}
	for name, build := range r.oneShots() {
		t[name] = r.inTerminal(build)
		t[name+panelSuffix] = r.captured(build)
	}
	t["htflow.audit"] = r.audit
	return t
}

// oneShots are the external commands that run once and exit
func (r *Router) oneShots() map[string]func(*Call) (string, error) {
	tool := func() string { return r.Settings.Tool() }
	pkg := func() string { return r.Settings.Package() }
	fixed := func(cmd func(string) string, arg func() string) func(*Call) (string, error) {
		return func(*Call) (string, error) { return cmd(arg()), nil }
	}
	return map[string]func(*Call) (string, error){
		"htflow.init": fixed(htflow.Init, tool),
		"htflow.validate": func(c *Call) (string, error) {
			path, err := r.workspacePath(c, "path")
			return htflow.Validate(tool(), path), err
		},
		"htflow.build":   fixed(htflow.Build, tool),
		"htflow.version": fixed(htflow.Version, tool),
		"htflow.audit": func(c *Call) (string, error) {
			folder, err := r.workspacePath(c, "folder")
			return htflow.Audit(tool(), folder), err
		},
		"htflow.audit.html":    fixed(htflow.AuditHTML, tool),
		"htflow.mcp-install":   fixed(htflow.MCPInstall, tool),
		"htflow.mcp-uninstall": fixed(htflow.MCPUninstall, tool),
		"htflow.mcp-status":    fixed(htflow.MCPStatus, tool),
		"npm.install":          fixed(htflow.NpmInstall, pkg),
		"npm.update":           fixed(htflow.NpmUpdate, pkg),
		"npm.uninstall":        fixed(htflow.NpmUninstall, pkg),
	}
}

// workspacePath reads a path from the payload and rejects it unless it stays
// inside the workspace root
func (r *Router) workspacePath(c *Call, key string) (string, error) {
	p := c.Msg.String(key)
	if p == "" {
		return "", nil
	}
	root, ok := r.Workspace()
	if !ok || root == "" {
		return "", server.ErrNoWorkspace
	}
	return workspace.Within(root, p)
}

func (r *Router) root() (string, error) {
	root, ok := r.Workspace()
	if !ok || root == "" {
		return "", server.ErrNoWorkspace
	}
	return root, nil
}

func (r *Router) start(ctx context.Context, req server.StartRequest) error {
	_, err := r.Servers.Start(ctx, req)
	return err
}

func (r *Router) startLiveServer(ctx context.Context, c *Call) error {
	port, explicit := c.Msg.Port("port")
	return r.start(ctx, server.StartRequest{
		Port:         port,
		ExplicitPort: explicit,
		Mode:         c.Msg.String("mode"),
		Folder:       c.Msg.String("folder"),
		Origin:       server.OriginBrowser,
	})
}

func (r *Router) serve(mode string) Handler {
	return func(ctx context.Context, c *Call) error {
		port, explicit := c.Msg.Port("port")
		return r.start(ctx, server.StartRequest{
			Port:         port,
			ExplicitPort: explicit,
			Mode:         mode,
			Folder:       c.Msg.String("folder"),
			Origin:       c.Origin(),
		})
	}
}

// serveCustom always passes the port: a custom mode has no short form
func (r *Router) serveCustom(ctx context.Context, c *Call) error {
	mode := c.Msg.String("mode")
	if mode == "" {
		mode = ModeCustom
	}
	port, ok := c.Msg.Port("port")
	if !ok {
		port = server.DefaultPort(mode)
	}
	return r.start(ctx, server.StartRequest{
		Port:         port,
		ExplicitPort: true,
		Mode:         mode,
		Folder:       c.Msg.String("folder"),
		Origin:       c.Origin(),
	})
}

func (r *Router) stopLiveServer(_ context.Context, c *Call) error {
	return r.stop(c, true)
}

func (r *Router) stopServer(_ context.Context, c *Call) error {
	return r.stop(c, false)
}

// stop resolves the server by id, then by port, then (for the browser) by
// the live-preview target
func (r *Router) stop(c *Call, orTarget bool) error {
	id := c.Msg.String("serverId")
	port, hasPort := c.Msg.Port("port")
	if id == "" && hasPort {
		if rs := r.Servers.FindByPort(port, ""); rs != nil {
			id = rs.ID
		}
	}
	if id == "" && orTarget {
		id = r.Servers.Target()
	}
	if id == "" || !r.Servers.Stop(id, port) {
		return ErrServerNotFound
	}
	return nil
}

func (r *Router) inTerminal(build func(*Call) (string, error)) Handler {
	return func(_ context.Context, c *Call) error {
		cmdline, err := build(c)
		if err != nil {
			return err
		}
		root, _ := r.Workspace()
		return r.Exec.RunInTerminal(cmdline, root)
	}
}

func (r *Router) captured(build func(*Call) (string, error)) Handler {
	return func(ctx context.Context, c *Call) error {
		cmdline, err := build(c)
		if err != nil {
			return err
		}
		_, err = r.runForPanel(ctx, cmdline)
		return err
	}
}

// runForPanel runs cmdline captured and broadcasts the result. A failing
// command is reported to the user but is not a handler error.
func (r *Router) runForPanel(ctx context.Context, cmdline string) (string, error) {
	root, err := r.root()
	if err != nil {
		return "", err
	}
	res := r.Exec.RunCaptured(ctx, cmdline, root)
	r.Hub.Broadcast(commandResults(CommandData{
		Command:  res.Command,
		Output:   res.Output,
		Success:  res.Success,
		ExitCode: res.ExitCode,
		Duration: res.Duration.Milliseconds(),
	}))
	if !res.Success {
		r.notify.Error(fmt.Sprintf("%s failed with exit code %d", cmdline, res.ExitCode))
	}
	return res.Output, nil
}

func (r *Router) audit(ctx context.Context, c *Call) error {
	folder, err := r.workspacePath(c, "folder")
	if err != nil {
		return err
	}
	cmdline := htflow.Audit(r.Settings.Tool(), folder)
	if !c.Msg.Bool("displayInPanel") {
		root, _ := r.Workspace()
		return r.Exec.RunInTerminal(cmdline, root)
	}
	out, err := r.runForPanel(ctx, cmdline)
	if err != nil {
		return err
	}
	r.Hub.Broadcast(auditResults(out))
	return nil
}

func (r *Router) validateFile(_ context.Context, c *Call) error {
	path, err := r.workspacePath(c, "path")
	if err != nil {
		return err
	}
	root, _ := r.Workspace()
	return r.Exec.RunInTerminal(htflow.Validate(r.Settings.Tool(), path), root)
}

func (r *Router) openFile(_ context.Context, c *Call) error {
	path := c.Msg.String("path")
	if path == "" {
		return errors.New("no file path given")
	}
	if r.Opener == nil {
		return errors.New("opening files is not supported")
	}
	if !filepath.IsAbs(path) {
		root, err := r.root()
		if err != nil {
			return err
		}
		path = filepath.Join(root, path)
	}
	return r.Opener.OpenFile(path)
}

func (r *Router) openURL(_ context.Context, c *Call) error {
	url := c.Msg.String("url")
	if url == "" {
		return errors.New("no url given")
	}
	if r.Opener == nil {
		return errors.New("opening urls is not supported")
	}
	return r.Opener.OpenExternal(url)
}

// openIndexInBrowser prefers a running server over the bare file
func (r *Router) openIndexInBrowser(_ context.Context, _ *Call) error {
	if r.Opener == nil {
		return errors.New("opening urls is not supported")
	}
	if rs := r.Servers.Get(r.Servers.Target()); rs != nil {
		return r.Opener.OpenExternal(server.LocalURL(rs.Port))
	}
	if servers := r.Servers.List(); len(servers) > 0 {
		return r.Opener.OpenExternal(server.LocalURL(servers[0].Port))
	}
	root, err := r.root()
	if err != nil {
		return err
	}
	index, ok := workspace.IndexFile(root)
	if !ok {
		return fmt.Errorf("no %s found in %s", workspace.IndexName, root)
	}
	return r.Opener.OpenFile(index)
}

func (r *Router) settingChange(_ context.Context, c *Call) error {
	setting := c.Msg.String("setting")
	if setting == "" {
		return errors.New("no setting name given")
	}
	if err := r.Settings.Update(setting, c.Msg.Value("value")); err != nil {
		return err
	}
	r.log.Info().Str("setting", setting).Msg("setting updated")
	return nil
}

func (r *Router) toolAction(ctx context.Context, c *Call) error {
	tool := c.Msg.String("tool")
	if tool == "" {
		return errors.New("no tool given")
	}
	for _, name := range []string{toolAliases[tool], tool, "htflow." + tool} {
		if name == "" || name == "toolAction" {
			continue
		}
		if _, ok := r.table[name]; ok {
			return r.dispatch(ctx, c, name)
		}
	}
	r.reply(c, ack(tool))
	return nil
}

func (r *Router) workspaceInfo() Message {
	root, ok := r.Workspace()
	folders := []string{}
	if ok && root != "" {
		folders = append(folders, workspace.Folders(root)...)
	}
	return NewMessage(CmdWorkspaceInfo, "root", root, "hasWorkspace", ok && root != "", "folders", folders)
}

func (r *Router) refreshWorkspace(_ context.Context, c *Call) error {
	r.reply(c, r.workspaceInfo())
	return nil
}

// ready brings a newly attached surface up to date
func (r *Router) ready(_ context.Context, c *Call) error {
	r.reply(c, r.workspaceInfo())
	for _, info := range r.Servers.List() {
		r.reply(c, serverStarted(info.ID, info))
	}
	if c.From != nil && c.From.Kind() == KindBrowser {
		if rs := r.Servers.Get(r.Servers.Target()); rs != nil {
			r.Servers.MapTarget()
			r.reply(c, liveServerStarted(rs.ID, rs.Port, rs.Mode))
		}
	}
	return nil
}

func (r *Router) openBrowserPanel(_ context.Context, _ *Call) error {
	if r.PanelURL == "" || r.Opener == nil {
		return errors.New("browser panel is not available")
	}
	return r.Opener.OpenExternal(r.PanelURL)
}

func (r *Router) copyURL(_ context.Context, c *Call) error {
	url := c.Msg.String("url")
	if url == "" {
		if rs := r.Servers.Get(r.Servers.Target()); rs != nil {
			url = server.LocalURL(rs.Port)
		}
	}
	if url == "" {
		return errors.New("no url to copy")
	}
	if r.Clipboard == nil {
		return errors.New("clipboard is not available")
	}
	if err := r.Clipboard.Copy(url); err != nil {
		return err
	}
	r.notify.Status("Copied "+url, copiedStatus)
	return nil
}

func (r *Router) listServers(_ context.Context, c *Call) error {
	r.reply(c, NewMessage(CmdServerList, "servers", r.Servers.List()))
	return nil
}
