// Package watch drives a dashboard headlessly and prints every series update.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/climagrid/internal/apiclient"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/dashboard"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/observability"
	"github.com/tphakala/climagrid/internal/observability/metrics"
	"github.com/tphakala/climagrid/internal/state"
)

const (
	// searchTimeout bounds the wait for geocode results.
	searchTimeout = 30 * time.Second
	// healthTimeout bounds the reachability check before the dashboard starts.
	healthTimeout = 10 * time.Second
)

// Options are the watch command flags.
type Options struct {
	Query    string
	Metric   string
	Hours    int
	Interval time.Duration
	Pick     int
}

// Command creates the watch command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the forecast for a place",
		Long:  "Searches for a place, selects one of the results and prints a summary every time the forecast series changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, opts, cmd.OutOrStdout())
		},
	}

	if err := setupFlags(cmd, settings, opts); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings, opts *Options) error {
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "Place to search for")
	cmd.Flags().StringVar(&opts.Metric, "metric", "", "Metric to display (defaults to view.defaultmetric)")
	cmd.Flags().IntVar(&opts.Hours, "hours", 0, "Forecast horizon in hours (defaults to view.defaulthours)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Reload the series at this interval, 0 disables")
	cmd.Flags().IntVar(&opts.Pick, "pick", 0, "Index of the search result to select")
	cmd.Flags().StringVar(&settings.Metrics.Listen, "metrics-listen", settings.Metrics.Listen, "Serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("query")

	if err := viper.BindPFlag("metrics.listen", cmd.Flags().Lookup("metrics-listen")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func run(ctx context.Context, settings *conf.Settings, opts *Options, out io.Writer) error {
	log := logger.Global().Module("watch")

	var m *observability.Metrics
	var clientMetrics *metrics.ClientMetrics
	if settings.Metrics.Listen != "" {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			return err
		}
		clientMetrics = m.Client
	}

	client, err := apiclient.New(&settings.API,
		apiclient.WithLogger(logger.Global().Module("apiclient")),
		apiclient.WithMetrics(clientMetrics))
	if err != nil {
		return err
	}
	defer client.Close()

	healthCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	err = client.Health(healthCtx)
	cancel()
	if err != nil {
		return errors.New(fmt.Errorf("ClimaGrid API at %s is not reachable: %w", settings.API.BaseURL, err)).
			Component("watch").
			Category(errors.CategoryNetwork).
			Context("operation", "health_check").
			Build()
	}

	d, err := dashboard.New(settings,
		dashboard.WithAPI(client),
		dashboard.WithMetrics(clientMetrics))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if m != nil {
		endpoint, err := observability.NewEndpoint(settings.Metrics.Listen, m, logger.Global().Module("metrics"))
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}
	g.Go(func() error {
		defer d.Close()
		return Drive(gctx, d, opts, out, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Drive starts d, selects the opts.Pick result for opts.Query and prints a
// summary for every new series until ctx is done.
func Drive(ctx context.Context, d *dashboard.Dashboard, opts *Options, out io.Writer, log logger.Logger) error {
	updates := make(chan state.ViewState, 1)
	if err := d.Start(ctx); err != nil {
		return err
	}
	unsubscribe := d.Subscribe(func(vs state.ViewState) {
		// Keep only the latest snapshot.
		select {
		case <-updates:
		default:
		}
		updates <- vs
	})
	defer unsubscribe()

	if opts.Metric != "" {
		d.SetMetric(opts.Metric)
	}
	if opts.Hours != 0 {
		d.SetHorizon(opts.Hours)
	}
	d.SetSearchTerm(opts.Query)
	log.Info("Searching", logger.String("query", opts.Query))

	var refresh <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	searchDeadline := time.NewTimer(searchTimeout)
	defer searchDeadline.Stop()

	selected := false
	lastSummary := ""
	lastError := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-searchDeadline.C:
			if !selected {
				return errors.Newf("no places found for %q", opts.Query).
					Component("watch").
					Category(errors.CategoryNotFound).
					Build()
			}

		case <-refresh:
			if selected {
				d.Refresh()
			}

		case vs := <-updates:
			if !selected && !vs.Searching && len(vs.SearchResults) > 0 {
				if err := d.SelectResult(ctx, opts.Pick); err != nil {
					return err
				}
				selected = true
				continue
			}

			if vs.ErrorMessage != "" && vs.ErrorMessage != lastError {
				fmt.Fprintf(out, "error: %s\n", vs.ErrorMessage)
			}
			lastError = vs.ErrorMessage

			if summary := Summarize(&vs); summary != "" && summary != lastSummary {
				fmt.Fprintln(out, summary)
				lastSummary = summary
			}
		}
	}
}
