package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/climagrid/cmd/catalog"
	"github.com/tphakala/climagrid/cmd/config"
	"github.com/tphakala/climagrid/cmd/observe"
	"github.com/tphakala/climagrid/cmd/watch"
	"github.com/tphakala/climagrid/internal/buildinfo"
	"github.com/tphakala/climagrid/internal/conf"
	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	var central *logger.CentralLogger
	var reporting bool

	rootCmd := &cobra.Command{
		Use:           "climagrid",
		Short:         "ClimaGrid dashboard client",
		Long:          "Headless client for the ClimaGrid forecast and community observation API.",
		Version:       buildinfo.Current().GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		watch.Command(settings),
		catalog.Command(settings),
		observe.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags are bound to settings directly, so check them again.
		if err := settings.Validate(); err != nil {
			return err
		}

		var err error
		central, err = initLogging(settings)
		if err != nil {
			return err
		}

		reporting, err = telemetry.InitSentry(&settings.Telemetry, buildinfo.Current(), logger.Global().Module("telemetry"))
		return err
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if reporting {
			telemetry.Flush()
		}
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// initLogging installs the global logger from the logging settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := &logger.LoggingConfig{
		DefaultLevel: settings.Logging.Level,
		Timezone:     settings.View.Timezone,
		Console: &logger.ConsoleOutput{
			Enabled: true,
			Level:   settings.Logging.Level,
		},
		ModuleLevels: settings.Logging.ModuleLevels,
	}
	if settings.Logging.File != "" {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    settings.Logging.File,
			Level:   settings.Logging.Level,
		}
	}

	central, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settings.API.BaseURL, "api-url", settings.API.BaseURL, "Base URL of the ClimaGrid API")
	flags.DurationVar(&settings.API.Timeout, "timeout", settings.API.Timeout, "Per-request API timeout, 0 lets requests run until cancelled")
	flags.StringVar(&settings.Logging.Level, "log-level", settings.Logging.Level, "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&settings.Logging.File, "log-file", settings.Logging.File, "Write JSON logs to this file")
	flags.StringVar(&settings.View.Timezone, "timezone", settings.View.Timezone, "Time zone for observation timestamps")

	return bindFlags(flags, map[string]string{
		"api.baseurl":   "api-url",
		"api.timeout":   "timeout",
		"logging.level": "log-level",
		"logging.file":  "log-file",
		"view.timezone": "timezone",
	})
}

// bindFlags binds config keys to the named flags so viper sees flag values.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %s is not defined", name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
