// Package catalog implements the command that prints the metric catalog.
package catalog

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/climagrid/internal/apiclient"
	metriccatalog "github.com/tphakala/climagrid/internal/catalog"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
)

// Command creates the catalog command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the selectable metrics",
		Long:  "Loads the metric catalog from the API and prints it. The built-in catalog is printed when the API copy cannot be used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiclient.New(&settings.API, apiclient.WithLogger(logger.Global().Module("apiclient")))
			if err != nil {
				return err
			}
			defer client.Close()

			c := Load(cmd.Context(), client, logger.Global().Module("catalog"))
			return Print(cmd.OutOrStdout(), c)
		},
	}
}

// Load fetches and parses the catalog, falling back to the built-in one.
func Load(ctx context.Context, api metriccatalog.API, log logger.Logger) model.MetricCatalog {
	body, err := api.MetricCatalog(ctx)
	if err == nil {
		var c model.MetricCatalog
		if c, err = metriccatalog.Parse(body); err == nil {
			return c
		}
	}
	log.Warn("Metric catalog unavailable, using built-in metrics", logger.Error(err))
	return model.DefaultCatalog()
}

// Print writes the catalog as an aligned table sorted by key.
func Print(w io.Writer, c model.MetricCatalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tUNIT")
	for _, key := range c.Keys() {
		d := c[key]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, d.Label, d.Unit)
	}
	return tw.Flush()
}
