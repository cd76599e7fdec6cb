// Package conf loads ClimaGrid settings from defaults, an optional YAML
// file, environment variables and command line flags using viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/climagrid/internal/errors"
)

// ConfigName is the base name of the optional configuration file.
const ConfigName = "climagrid"

// Settings contains all configuration options for ClimaGrid.
type Settings struct {
	API       APISettings       `yaml:"api"`
	Search    SearchSettings    `yaml:"search"`
	View      ViewSettings      `yaml:"view"`
	Logging   LoggingSettings   `yaml:"logging"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	Metrics   MetricsSettings   `yaml:"metrics"`

	ConfigFile string `yaml:"-"` // path of the file that was read, runtime value
}

// APISettings configures the remote ClimaGrid API client.
type APISettings struct {
	BaseURL         string        `yaml:"baseurl"`         // base URL, fixed for the process lifetime
	Timeout         time.Duration `yaml:"timeout"`         // per-request limit, 0 lets requests run until cancelled
	RateLimit       float64       `yaml:"ratelimit"`       // outbound requests per second
	Burst           int           `yaml:"burst"`           // token bucket size
	GeocodeCacheTTL time.Duration `yaml:"geocodecachettl"` // 0 disables the geocode cache
	UserAgent       string        `yaml:"useragent"`       // User-Agent header
}

// SearchSettings configures the place search coordinator.
type SearchSettings struct {
	Debounce    time.Duration `yaml:"debounce"`    // quiet period before a geocode query
	MinLength   int           `yaml:"minlength"`   // minimum trimmed term length in characters
	ResultCount int           `yaml:"resultcount"` // results requested per query
}

// ViewSettings configures the initial view state.
type ViewSettings struct {
	DefaultMetric string `yaml:"defaultmetric"`
	DefaultHours  int    `yaml:"defaulthours"`
	Timezone      string `yaml:"timezone"` // "Local", "UTC" or an IANA name; used for observation timestamps
}

// LoggingSettings configures the central logger.
type LoggingSettings struct {
	Level        string            `yaml:"level"`
	File         string            `yaml:"file"` // JSON log file, empty disables
	ModuleLevels map[string]string `yaml:"modulelevels"`
}

// TelemetrySettings configures optional Sentry error reporting.
type TelemetrySettings struct {
	Enabled   bool   `yaml:"enabled"`
	SentryDSN string `yaml:"sentrydsn"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Listen string `yaml:"listen"` // address for /metrics, empty disables
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables into
// a new Settings. An explicit configFile must exist; otherwise the default
// search paths are tried and a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}
	settings.ConfigFile = viper.ConfigFileUsed()

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper registers defaults and environment bindings and reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "bind_env").
			Build()
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(ConfigName)
		viper.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	return nil
}

// DefaultConfigPaths returns the directories searched for climagrid.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", ConfigName))
	}
	return append(paths, filepath.Join("/etc", ConfigName))
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Location returns the display time zone for observation timestamps.
func (s *Settings) Location() *time.Location {
	loc, err := loadLocation(s.View.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(name)
	}
}

// YAML renders the effective settings.
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}
