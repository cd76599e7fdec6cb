// Package config implements the command that prints the effective settings.
package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/climagrid/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the settings after defaults, the config file, environment variables and flags have been applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Print(cmd.OutOrStdout(), settings)
		},
	}
}

// redacted replaces the Sentry DSN in printed settings.
const redacted = "[REDACTED]"

// Print writes settings as YAML, preceded by the config file in use. The
// Sentry DSN is never printed.
func Print(w io.Writer, settings *conf.Settings) error {
	printable := *settings
	if printable.Telemetry.SentryDSN != "" {
		printable.Telemetry.SentryDSN = redacted
	}

	data, err := printable.YAML()
	if err != nil {
		return err
	}
	if settings.ConfigFile != "" {
		if _, err := fmt.Fprintf(w, "# %s\n", settings.ConfigFile); err != nil {
			return err
		}
	}
	_, err = w.Write(data)
	return err
}
