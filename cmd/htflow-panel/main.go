package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kimaguri/htflow-panel/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// options are the flags shared by serve and servers
type options struct {
	configPath string
	workspace  string
	listen     string
	tool       string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "htflow-panel",
		Short: "Run htflow preview servers for the editor panel",
		Long: `htflow-panel hosts the htflow sidebar, panel and browser preview.
UI surfaces connect over WebSocket; servers run in PTY terminals.
Without a subcommand it behaves like "serve".`,
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.SetVersionTemplate(`{{printf "htflow-panel %s\n" .Version}}`)
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.Path(), "config file")
	root.PersistentFlags().StringVar(&opts.listen, "listen", "", "address of the panel host (overrides config)")
	addServeFlags(root, opts)

	root.AddCommand(newServeCmd(opts), newServersCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "htflow-panel %s (%s)\n", version, commit)
		},
	}
}

// newLogger builds the root logger writing human-readable lines to stderr
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger()
}
