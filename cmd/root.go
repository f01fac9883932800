/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// root.go defines the root command, which runs the MCP server, and the CLI
// execution entry point.
//
// Separated from the subcommands because serving has its own lifecycle: it
// blocks until the MCP client goes away or a signal arrives, then tears down
// every editor connection before returning.
//
// Design: Operational logs never go to stdout, which is the MCP channel in
// stdio mode. Config supplies the defaults and flags given on the command
// line win.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/jpl-au/nvimcp/internal/config"
	"github.com/jpl-au/nvimcp/internal/log"
	"github.com/jpl-au/nvimcp/internal/mcp"
	"github.com/jpl-au/nvimcp/internal/nvim"
	"github.com/jpl-au/nvimcp/internal/telemetry"
	"github.com/jpl-au/nvimcp/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nvimcp",
		Short: "MCP server for Neovim",
		Long: `Expose running Neovim instances to MCP clients.

Serves over stdio by default. Use --http-port to serve streamable HTTP at
/mcp, with Prometheus metrics at /metrics.

  nvimcp                    # stdio
  nvimcp --http-port 8765   # http://127.0.0.1:8765/mcp`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if output != "" && !slices.Contains(validOutputFormats, output) {
				return fmt.Errorf("invalid output format: %s (valid: %v)", output, validOutputFormats)
			}
			return nil
		},
		RunE: runServe,
	}
	bindFlags(root)
	root.AddCommand(
		newTargetsCmd(),
		newVersionCmd(),
		newConfigCmd(),
		newLogCmd(),
	)
	return root
}

// Execute runs the root command and handles process lifecycle.
// Opens audit logging unless disabled, executes the command, and closes the
// audit log before exit. Exit code 1 indicates error.
func Execute() {
	if auditEnabled() {
		// Initialise audit logger (warn if it fails, but continue)
		if err := log.Open(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
		}
	}

	err := rootCmd.Execute()
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}

// auditEnabled reads audit.enabled. An unreadable config leaves auditing on;
// the command that needs the config reports the error.
func auditEnabled() bool {
	cfg, err := config.Load()
	if err != nil {
		return true
	}
	return cfg.AuditEnabled()
}

func runServe(c *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := applyFlags(c, cfg); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if trace {
		provider, err := telemetry.Setup(os.Stderr, "nvimcp", version.Short())
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
	}

	pruneAudit(cfg, logger)

	g := mcp.NewGateway(mcp.Options{
		Client: nvim.Options{
			CallTimeout:    cfg.CallTimeout(),
			ConnectTimeout: cfg.ConnectTimeout(),
			NotifyBuffer:   cfg.NotifyBuffer(),
		},
		LuaDiscovery: cfg.LuaDiscovery(),
		Logger:       logger,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.Close(closeCtx); err != nil {
			logger.Warn("closing connections", "error", err)
		}
	}()

	var addr string
	if port := cfg.HTTPPort(); port > 0 {
		addr = net.JoinHostPort(cfg.HTTPHost(), strconv.Itoa(port))
	}
	return mcp.Serve(ctx, g, mcp.ServeOptions{HTTPAddr: addr})
}

// applyFlags copies flags given on the command line onto cfg and validates
// the result.
func applyFlags(c *cobra.Command, cfg *config.Config) error {
	f := c.Flags()
	if f.Changed(flagLogFile) {
		cfg.Log.File = logFile
	}
	if f.Changed(flagLogLevel) {
		cfg.Log.Level = logLevel
	}
	if f.Changed(flagHTTPHost) {
		cfg.HTTP.Host = httpHost
	}
	if f.Changed(flagHTTPPort) {
		cfg.HTTP.Port = &httpPort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// newLogger builds the operational logger: text on an interactive stderr,
// JSON when stderr is redirected or a log file is set.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level, err := config.ParseLevel(cfg.LogLevel())
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Log.File == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}, nil
		}
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, opts)), func() { _ = f.Close() }, nil
}

// pruneAudit drops audit entries older than audit.retention.
func pruneAudit(cfg *config.Config, logger *slog.Logger) {
	keep := cfg.AuditRetention()
	if keep <= 0 {
		return
	}
	n, err := log.Prune(keep)
	if err != nil {
		logger.Warn("audit prune failed", "error", err)
		return
	}
	if n > 0 {
		logger.Debug("audit log pruned", "entries", n, "retention", keep)
	}
}
