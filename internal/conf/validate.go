// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/climagrid/internal/errors"
	"github.com/tphakala/climagrid/internal/model"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// Validate checks the settings and returns every problem found.
func (s *Settings) Validate() error {
	ve := ValidationError{}
	add := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	add(validateAPISettings(&s.API))
	add(validateSearchSettings(&s.Search))
	add(validateViewSettings(&s.View))

	if s.Logging.Level != "" {
		if err := validateEnvLogLevel(s.Logging.Level); err != nil {
			add(fmt.Errorf("logging.level: %w", err))
		}
	}
	if s.Telemetry.Enabled && s.Telemetry.SentryDSN == "" {
		add(fmt.Errorf("telemetry.sentrydsn is required when telemetry is enabled"))
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateAPISettings(api *APISettings) error {
	var problems []string

	if err := validateEnvBaseURL(api.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("api.baseurl: %v", err))
	}
	if api.Timeout < 0 {
		problems = append(problems, "api.timeout must not be negative")
	}
	if api.RateLimit <= 0 {
		problems = append(problems, "api.ratelimit must be positive")
	}
	if api.Burst < 1 {
		problems = append(problems, "api.burst must be at least 1")
	}
	if api.GeocodeCacheTTL < 0 {
		problems = append(problems, "api.geocodecachettl must not be negative")
	}

	return joinProblems(problems)
}

func validateSearchSettings(search *SearchSettings) error {
	var problems []string

	if search.Debounce <= 0 {
		problems = append(problems, "search.debounce must be positive")
	}
	if search.MinLength < 1 {
		problems = append(problems, "search.minlength must be at least 1")
	}
	if search.ResultCount < 1 || search.ResultCount > 10 {
		problems = append(problems, "search.resultcount must be between 1 and 10")
	}

	return joinProblems(problems)
}

func validateViewSettings(view *ViewSettings) error {
	var problems []string

	if _, ok := model.DefaultCatalog().Lookup(view.DefaultMetric); !ok {
		problems = append(problems, fmt.Sprintf("view.defaultmetric %q is not a known metric", view.DefaultMetric))
	}
	if view.DefaultHours < MinHorizonHours || view.DefaultHours > MaxHorizonHours {
		problems = append(problems, fmt.Sprintf("view.defaulthours must be between %d and %d", MinHorizonHours, MaxHorizonHours))
	}
	if _, err := loadLocation(view.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("view.timezone: %v", err))
	}

	return joinProblems(problems)
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
