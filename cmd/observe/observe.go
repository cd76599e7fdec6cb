// Package observe implements commands to submit and list community observations.
package observe

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/climagrid/internal/apiclient"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/model"
	"github.com/tphakala/climagrid/internal/observation"
	"github.com/tphakala/climagrid/internal/state"
)

// Command creates the observe command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Submit or list community observations",
	}
	cmd.AddCommand(submitCommand(settings), listCommand(settings))
	return cmd
}

// SubmitInput holds the submit command flags.
type SubmitInput struct {
	Latitude  float64
	Longitude float64
	Name      string
	Metric    string
	Value     string
	Notes     string
	At        string // local time in state.DraftTimestampLayout, empty means now
}

func submitCommand(settings *conf.Settings) *cobra.Command {
	in := &SubmitInput{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record an observation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(settings)
			if err != nil {
				return err
			}
			defer client.Close()

			created, err := Submit(cmd.Context(), client, in, settings.View.DefaultMetric, time.Now(), settings.Location())
			if err != nil {
				return err
			}
			logger.Global().Module("observe").Info("Observation recorded",
				logger.String("id", created.ID),
				logger.String("metric", created.Metric))
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s %s=%s at %s\n",
				displayID(created.ID), created.Metric, formatValue(created.Value), created.Timestamp.UTC().Format(time.RFC3339))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&in.Latitude, "lat", 0, "Latitude of the observation")
	flags.Float64Var(&in.Longitude, "lon", 0, "Longitude of the observation")
	flags.StringVar(&in.Name, "name", "", "Place name")
	flags.StringVar(&in.Metric, "metric", "", "Metric key (defaults to view.defaultmetric)")
	flags.StringVar(&in.Value, "value", "", "Observed value")
	flags.StringVar(&in.Notes, "notes", "", "Free-form notes")
	flags.StringVar(&in.At, "at", "", "Local observation time as YYYY-MM-DDTHH:MM, defaults to now")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

// Submit validates in the same way as the dashboard draft and posts it.
func Submit(ctx context.Context, api observation.API, in *SubmitInput, defaultMetric string, now time.Time, tz *time.Location) (*model.Observation, error) {
	loc := &model.Location{Name: in.Name, Latitude: in.Latitude, Longitude: in.Longitude}
	draft := state.ObservationDraft{
		Metric:         in.Metric,
		RawValue:       in.Value,
		TimestampLocal: in.At,
		Notes:          in.Notes,
	}

	obs, err := observation.Build(draft, loc, defaultMetric, now, tz)
	if err != nil {
		return nil, err
	}
	created, err := api.SubmitObservation(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("submitting observation: %w", err)
	}
	return created, nil
}

// Lister lists observations.
type Lister interface {
	ListObservations(ctx context.Context, q model.ObservationQuery) ([]model.Observation, error)
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var q model.ObservationQuery
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent observations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
				return fmt.Errorf("--lat and --lon must be given together")
			}
			if cmd.Flags().Changed("lat") {
				q.Latitude, q.Longitude = &lat, &lon
			}

			client, err := newClient(settings)
			if err != nil {
				return err
			}
			defer client.Close()

			return List(cmd.Context(), client, q, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&q.Metric, "metric", "", "Only this metric")
	flags.Float64Var(&lat, "lat", 0, "Latitude of the search centre")
	flags.Float64Var(&lon, "lon", 0, "Longitude of the search centre")
	flags.Float64Var(&q.RadiusKm, "radius", 0, "Search radius in km (server default when 0)")
	flags.IntVar(&q.Hours, "hours", 0, "Only observations from the last N hours")

	return cmd
}

// List prints the observations matching q.
func List(ctx context.Context, api Lister, q model.ObservationQuery, w io.Writer) error {
	observations, err := api.ListObservations(ctx, q)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		_, err := fmt.Fprintln(w, "no observations")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETRIC\tVALUE\tSOURCE\tLOCATION\tNOTES")
	for _, o := range observations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Timestamp.UTC().Format(time.RFC3339), o.Metric, formatValue(o.Value), o.Source, o.LocationName, o.Notes)
	}
	return tw.Flush()
}

func newClient(settings *conf.Settings) (*apiclient.Client, error) {
	return apiclient.New(&settings.API, apiclient.WithLogger(logger.Global().Module("apiclient")))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func displayID(id string) string {
	if id == "" {
		return "observation"
	}
	return id
}
