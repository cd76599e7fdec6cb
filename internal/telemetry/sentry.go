// Package telemetry provides opt-in, privacy-preserving error reporting.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/climagrid/internal/buildinfo"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
)

// FlushTimeout bounds how long Flush waits for queued events.
const FlushTimeout = 2 * time.Second

// allowedExtras are the only extra fields kept on outgoing events.
var allowedExtras = map[string]bool{"error_type": true, "component": true}

// InitSentry initializes the Sentry SDK and routes built errors to it. It
// does nothing unless telemetry is enabled. The returned bool reports
// whether reporting is active.
func InitSentry(settings *conf.TelemetrySettings, info *buildinfo.Context, log logger.Logger) (bool, error) {
	if !settings.Enabled {
		log.Debug("Error reporting disabled")
		return false, nil
	}
	if settings.SentryDSN == "" {
		return false, errors.Newf("telemetry enabled without a Sentry DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          info.Release(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("Error reporting enabled", logger.String("release", info.Release()))
	return true, nil
}

// Flush waits for queued events to be delivered.
func Flush() {
	sentry.Flush(FlushTimeout)
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if !allowedExtras[k] {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = logger.RedactSensitiveData(event.Message)
	return event
}
