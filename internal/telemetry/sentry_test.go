package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/climagrid/internal/buildinfo"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/logger"
)

func TestInitSentryDisabled(t *testing.T) {
	enabled, err := InitSentry(&conf.TelemetrySettings{}, buildinfo.NewContext("1.0.0", ""), logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestInitSentryRequiresDSN(t *testing.T) {
	_, err := InitSentry(&conf.TelemetrySettings{Enabled: true}, buildinfo.NewContext("1.0.0", ""), logger.NewDiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestInitSentryRejectsMalformedDSN(t *testing.T) {
	_, err := InitSentry(&conf.TelemetrySettings{Enabled: true, SentryDSN: "not a dsn"}, buildinfo.NewContext("1.0.0", ""), logger.NewDiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentry initialization failed")
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		Message:    "GET http://api.test/geocode failed",
		ServerName: "workstation-7",
		User:       sentry.User{ID: "42", IPAddress: "10.0.0.7"},
		Contexts: map[string]sentry.Context{
			"os":     {"name": "linux"},
			"device": {"arch": "amd64"},
			"trace":  {"span_id": "abc"},
		},
		Extra: map[string]any{"component": "apiclient", "home": "/home/user"},
		Tags:  map[string]string{"hostname": "workstation-7", "category": "network"},
	}

	filtered := applyPrivacyFilters(event)

	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.NotContains(t, filtered.Contexts, "os")
	assert.NotContains(t, filtered.Contexts, "device")
	assert.Contains(t, filtered.Contexts, "trace")
	assert.Equal(t, map[string]any{"component": "apiclient"}, filtered.Extra)
	assert.Equal(t, map[string]string{"category": "network"}, filtered.Tags)
}
