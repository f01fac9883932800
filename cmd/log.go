/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// log.go implements the "nvimcp log" commands for the audit log.

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpl-au/nvimcp/internal/config"
	"github.com/jpl-au/nvimcp/internal/duration"
	"github.com/jpl-au/nvimcp/internal/log"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "log",
		Short: "Manage the audit log",
		Long: `Manage the audit log of connections, tool calls and resource reads.

The log is a SQLite database at ~/.nvimcp/log/nvimcp-log.db.`,
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the audit log location",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if JSON() {
				return PrintJSON(map[string]string{"path": log.DBPath()})
			}
			fmt.Fprintln(out, log.DBPath())
			return nil
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete old audit entries",
		Long: `Delete audit entries older than --older-than, or audit.retention when the
flag is not given.

  nvimcp log prune --older-than 30d
  nvimcp log prune --older-than 2w`,
		Args: cobra.NoArgs,
		RunE: runLogPrune,
	}
	prune.Flags().String(flagOlderThan, "", "Age cutoff: Nd (days), Nw (weeks) or Nm (months)")

	c.AddCommand(path, prune)
	return c
}

func runLogPrune(c *cobra.Command, _ []string) error {
	var keep time.Duration
	if v, _ := c.Flags().GetString(flagOlderThan); v != "" {
		d, err := duration.Parse(v)
		if err != nil {
			return PrintJSONError(err)
		}
		keep = d
	} else {
		cfg, err := config.Load()
		if err != nil {
			return PrintJSONError(fmt.Errorf("config load: %w", err))
		}
		keep = cfg.AuditRetention()
	}
	if keep <= 0 {
		return PrintJSONError(errors.New("no age given: use --older-than or set audit.retention"))
	}

	n, err := log.Prune(keep)
	log.Event("cli:log", "prune").Author("cli").Detail("older_than", keep.String()).Write(err)
	if err != nil {
		return PrintJSONError(err)
	}
	if JSON() {
		return PrintJSON(map[string]int64{"deleted": n})
	}
	fmt.Fprintf(out, "deleted %d entries\n", n)
	return nil
}
