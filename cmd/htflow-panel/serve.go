package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kimaguri/htflow-panel/internal/bridge"
	"github.com/kimaguri/htflow-panel/internal/config"
	"github.com/kimaguri/htflow-panel/internal/executor"
	"github.com/kimaguri/htflow-panel/internal/preview"
	"github.com/kimaguri/htflow-panel/internal/process"
	"github.com/kimaguri/htflow-panel/internal/router"
	"github.com/kimaguri/htflow-panel/internal/server"
	"github.com/kimaguri/htflow-panel/internal/watch"
	"github.com/kimaguri/htflow-panel/internal/workspace"
)

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the panel surfaces and manage preview servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(cmd, opts)
	return cmd
}

func addServeFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", "", "workspace root (default: config, then current directory)")
	cmd.Flags().StringVar(&opts.tool, "tool", "", "htflow command (overrides config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(opts *options) *config.Config {
	cfg := config.Load(opts.configPath)
	if opts.workspace != "" {
		cfg.Workspace = opts.workspace
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.tool != "" {
		cfg.Tool = opts.tool
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg := loadConfig(opts)
	log := newLogger(cfg.LogLevel)

	root, err := workspace.Resolve(cfg.Workspace)
	if err != nil {
		log.Warn().Err(err).Msg("running without a workspace")
		root = ""
	}
	logsDir := config.LogsDir()
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	store := config.NewStore(opts.configPath, cfg)
	shell := cfg.Shell
	if shell == "" {
		shell = process.DefaultShell()
	}
	terms := process.NewManager(shell, logsDir, log)
	hub := router.NewHub(log)
	panel := bridge.NewBrowserPanel(log)
	desktop := bridge.NewDesktop(log)
	workspaceFn := func() (string, bool) { return root, root != "" }

	svc := server.New(server.Options{
		Tool:          store.Tool,
		Terminals:     terms,
		Workspace:     workspaceFn,
		Notifier:      hub,
		Opener:        desktop,
		Events:        hub,
		Ports:         preview.NewMapper(panel.Current, log),
		OpenDelay:     cfg.BrowserOpenDelay(),
		NoBrowserOpen: func() bool { return !store.AutoOpenBrowser() },
		Log:           log,
	})
	exec := executor.New(executor.Options{Terminals: terms, Log: log})
	r := router.New(router.Deps{
		Servers:   svc,
		Exec:      exec,
		Hub:       hub,
		Settings:  store,
		Opener:    desktop,
		Clipboard: desktop,
		Workspace: workspaceFn,
		PanelURL:  cfg.PanelURL,
		Log:       log,
	})
	srv := bridge.New(bridge.Options{
		Router:    r,
		Hub:       hub,
		Servers:   svc,
		Panel:     panel,
		Terminals: terms,
		Log:       log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchFiles && root != "" {
		w, err := watch.New(root, hub, log)
		if err != nil {
			log.Warn().Err(err).Msg("file watching disabled")
		} else {
			go w.Run(ctx)
		}
	}

	log.Info().Str("workspace", root).Str("tool", store.Tool()).Str("version", version).Msg("htflow-panel starting")
	err = srv.Run(ctx, cfg.Listen)

	// Teardown: servers first, then any terminal still open
	svc.Dispose()
	exec.Wait()
	terms.DisposeAll()
	log.Info().Msg("stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
