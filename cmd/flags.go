/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// flags.go defines global CLI flags and the shared output helpers.
//
// Separated from root.go to isolate flag definitions from command logic.
//
// Design: Flags are package-level variables bound in newRootCmd, so building
// a fresh command tree also resets them. Serve flags override the matching
// config keys only when they were given on the command line.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var validOutputFormats = []string{"json"}

// Flag names shared between commands.
const (
	flagLocal     = "local"
	flagLogFile   = "log-file"
	flagLogLevel  = "log-level"
	flagHTTPHost  = "http-host"
	flagHTTPPort  = "http-port"
	flagTrace     = "trace"
	flagOlderThan = "older-than"
)

var (
	output   string
	logFile  string
	logLevel string
	httpHost string
	httpPort int
	trace    bool
)

// out is the output writer for commands. Defaults to os.Stdout.
// Tests can replace this to capture output.
var out io.Writer = os.Stdout

// SetOut sets the output writer (for testing).
func SetOut(w io.Writer) { out = w }

// JSON returns true if JSON output is requested.
func JSON() bool { return output == "json" }

// PrintJSON marshals v to JSON and writes it to the output writer.
// Returns nil if output format is not JSON.
func PrintJSON(v any) error {
	if output != "json" {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(out, string(b))
	return nil
}

// PrintJSONError prints an error in JSON format if output is JSON.
// Returns nil if error was printed (suppressing Cobra error), or the original error if not.
func PrintJSONError(err error) error {
	if output != "json" || err == nil {
		return err
	}
	_ = PrintJSON(map[string]string{"error": err.Error()})
	return nil
}

func bindFlags(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format: json")

	f := root.Flags()
	f.StringVar(&logFile, flagLogFile, "", "Write operational logs to this file instead of stderr")
	f.StringVar(&logLevel, flagLogLevel, "", "Log level: debug, info, warn, error")
	f.StringVar(&httpHost, flagHTTPHost, "", "Host to listen on in HTTP mode")
	f.IntVar(&httpPort, flagHTTPPort, 0, "Serve streamable HTTP on this port instead of stdio")
	f.BoolVar(&trace, flagTrace, false, "Write OpenTelemetry spans to stderr")

	_ = root.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return validOutputFormats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc(flagLogLevel, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
}
