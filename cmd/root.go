/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	infoCmd "github.com/mpapenbr/f1replay-service-go/pkg/cmd/info"
	migrateCmd "github.com/mpapenbr/f1replay-service-go/pkg/cmd/migrate"
	replayCmd "github.com/mpapenbr/f1replay-service-go/pkg/cmd/replay"
	serverCmd "github.com/mpapenbr/f1replay-service-go/pkg/cmd/server"
	"github.com/mpapenbr/f1replay-service-go/pkg/config"
	"github.com/mpapenbr/f1replay-service-go/version"
)

const envPrefix = "FRS"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "frs",
	Short:   "Replay of Formula 1 race telemetry",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:funlen // by design
func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.frs.yml)")

	pf.StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	pf.StringVar(&config.LogFormat,
		"log-format",
		"text",
		"controls the log output format (json, text)")
	pf.StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules, e.g. '*:* -debug:stream'")
	pf.StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"info",
		"controls the log level for sql methods")
	pf.StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"Duration to wait for other services to be ready")
	pf.BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	pf.StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data ('stdout' prints to stdout)")

	pf.StringVar(&config.DataDir,
		"data-dir",
		config.DefaultDataDir(),
		"directory of exported session documents (<year>/<round>/<type>.json)")
	pf.StringVar(&config.RawCacheURL,
		"raw-cache-url",
		config.DefaultRawCacheURL(),
		"cache for upstream documents: sqlite://<path>, postgresql://... or none")
	pf.StringVar(&config.UpstreamURL,
		"upstream-url",
		"",
		"base url of the telemetry export service")
	pf.StringVar(&config.UpstreamToken,
		"upstream-token",
		"",
		"bearer token for the telemetry export service")
	pf.StringVar(&config.UpstreamTimeout,
		"upstream-timeout",
		"60s",
		"timeout for upstream requests")
	pf.StringVar(&config.RosterFile,
		"roster-file",
		"",
		"team overrides per season (yaml or toml), reloaded on change")
	pf.IntVar(&config.FrameRate,
		"frame-rate",
		25,
		"frames per second of the replay")
	pf.StringVar(&config.NatsURL,
		"nats-url",
		"",
		"publish session events to this NATS server")
	pf.StringVar(&config.NatsSubject,
		"nats-subject",
		"frs",
		"subject prefix for session events")

	// add commands here
	rootCmd.AddCommand(serverCmd.NewServerCmd())
	rootCmd.AddCommand(replayCmd.NewReplayCmd())
	rootCmd.AddCommand(infoCmd.NewInfoCmd())
	rootCmd.AddCommand(migrateCmd.NewMigrateCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".frs" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".frs")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --raw-cache-url to FRS_RAW_CACHE_URL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
