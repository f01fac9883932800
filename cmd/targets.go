/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// targets.go implements the targets command.

package cmd

import (
	"fmt"

	"github.com/jpl-au/nvimcp/internal/transport"
	"github.com/spf13/cobra"
)

// discoverTargets is replaced in tests.
var discoverTargets = transport.Discover

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List running Neovim servers",
		Long: `List the sockets or named pipes of running Neovim servers found in the
usual runtime and temp directories. Any of them can be passed to the
connect tool.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			targets := discoverTargets()
			if JSON() {
				if targets == nil {
					targets = []string{}
				}
				return PrintJSON(map[string][]string{"targets": targets})
			}
			for _, t := range targets {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}
}
