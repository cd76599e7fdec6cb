// env.go - Environment variable configuration and validation for ClimaGrid
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"api.baseurl", "CLIMAGRID_API_BASE_URL", validateEnvBaseURL},
		{"api.timeout", "CLIMAGRID_API_TIMEOUT", validateEnvTimeout},
		{"search.debounce", "CLIMAGRID_SEARCH_DEBOUNCE", validateEnvDuration},
		{"logging.level", "CLIMAGRID_LOG_LEVEL", validateEnvLogLevel},
		{"telemetry.sentrydsn", "CLIMAGRID_SENTRY_DSN", nil},
		{"metrics.listen", "CLIMAGRID_METRICS_LISTEN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBaseURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// validateEnvTimeout accepts 0, which disables the timeout.
func validateEnvTimeout(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative, got %s", d)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

func validateEnvLogLevel(value string) error {
	level := strings.ToLower(strings.TrimSpace(value))
	for _, valid := range validLogLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(validLogLevels, ", "))
}
