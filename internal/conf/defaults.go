// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/climagrid/internal/model"
)

// Default values shared with tests and the CLI.
const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultUserAgent   = "ClimaGrid/1.0"
	DefaultDebounce    = 400 * time.Millisecond
	DefaultMinLength   = 3
	DefaultResultCount = 8
	DefaultHours       = 24
	MinHorizonHours    = 1
	MaxHorizonHours    = 168
)

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("api.baseurl", DefaultBaseURL)
	viper.SetDefault("api.timeout", time.Duration(0))
	viper.SetDefault("api.ratelimit", 10.0)
	viper.SetDefault("api.burst", 5)
	viper.SetDefault("api.geocodecachettl", 5*time.Minute)
	viper.SetDefault("api.useragent", DefaultUserAgent)

	viper.SetDefault("search.debounce", DefaultDebounce)
	viper.SetDefault("search.minlength", DefaultMinLength)
	viper.SetDefault("search.resultcount", DefaultResultCount)

	viper.SetDefault("view.defaultmetric", model.MetricTemperature)
	viper.SetDefault("view.defaulthours", DefaultHours)
	viper.SetDefault("view.timezone", "Local")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.modulelevels", map[string]string{})

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.sentrydsn", "")

	viper.SetDefault("metrics.listen", "")
}

// Defaults returns settings populated with default values only, for
// embedders and tests that do not read configuration.
func Defaults() *Settings {
	return &Settings{
		API: APISettings{
			BaseURL:         DefaultBaseURL,
			RateLimit:       10,
			Burst:           5,
			GeocodeCacheTTL: 5 * time.Minute,
			UserAgent:       DefaultUserAgent,
		},
		Search: SearchSettings{
			Debounce:    DefaultDebounce,
			MinLength:   DefaultMinLength,
			ResultCount: DefaultResultCount,
		},
		View: ViewSettings{
			DefaultMetric: model.MetricTemperature,
			DefaultHours:  DefaultHours,
			Timezone:      "Local",
		},
		Logging: LoggingSettings{
			Level:        "info",
			ModuleLevels: map[string]string{},
		},
	}
}
