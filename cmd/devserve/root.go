package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"example.com/devserve/internal/app"
	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/server"
)

const (
	AppName = "devserve"
	Version = "0.3.0"
)

// StartFunc runs a built server until it stops.
type StartFunc func(cmd *cobra.Command, srv *server.Server) error

type rootOptions struct {
	configPath string
	address    string
	debug      bool
	noColor    bool
}

// NewRootCmd creates the devserve command.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithStarter(listenAndServe)
}

// NewRootCmdWithStarter creates the devserve command with a custom start
// step, letting tests inspect the server instead of binding a port.
func NewRootCmdWithStarter(start StartFunc) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: "Serve the current directory over HTTP for local development",
		Long: fmt.Sprintf(`%s - local static file server

Serves files and directory listings from the current working directory.
Responses carry cross-origin isolation headers so pages can use
SharedArrayBuffer and WebAssembly threads.
`, AppName),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			lg, err := logger.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer lg.CloseLogFiles()

			if opts.configPath != "" {
				lg.Info("configuration loaded", logger.LogFields{"path": opts.configPath})
			}
			lg.Debug("debug logging enabled")

			stop := reopenLogsOnHangup(lg)
			defer stop()

			srv, err := app.NewServer(cfg, lg)
			if err != nil {
				lg.Error("failed to build server", logger.LogFields{"error": err})
				return err
			}
			return start(cmd, srv)
		},
	}

	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON, TOML or YAML configuration file")
	rootCmd.Flags().StringVarP(&opts.address, "address", "a", "", "listen address, overrides server.address (default \":8000\")")
	rootCmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", AppName, Version)
		},
	}
}

// loadConfig reads the config file when given, then applies flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if opts.address != "" {
		cfg.Server.Address = &opts.address
	}
	if opts.debug {
		cfg.Logging.LogLevel = config.LogLevelDebug
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reopenLogsOnHangup rotates file log targets on SIGHUP until stop is called.
func reopenLogsOnHangup(lg *logger.Logger) (stop func()) {
	hup := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-hup:
				if err := lg.ReopenLogFiles(); err != nil {
					lg.Error("failed to reopen log files", logger.LogFields{"error": err})
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(hup)
		close(done)
	}
}

func listenAndServe(cmd *cobra.Command, srv *server.Server) error {
	l, err := srv.Listen()
	if err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	printBanner(cmd.OutOrStdout(), wd, server.ReadyURL(l.Addr()))
	return srv.Serve(l)
}

func printBanner(w io.Writer, dir, url string) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s %s\n", AppName, Version)
	fmt.Fprintf(w, "  serving %s\n", color.CyanString(dir))
	fmt.Fprintf(w, "  at      %s\n", color.GreenString(url))
}
