// Package cmd wires the provender CLI together.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/provender-dev/provender/internal/config"
	"github.com/provender-dev/provender/internal/log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "provender",
	Short:   "A cached registry of build recipes for foreign dependencies",
	Long: `Provender keeps a local cache of the dependency registry, the table that
maps language dependencies to the system packages and environment variables
they need at build time. Commands serve from the cache immediately while a
background refresh fetches the latest registry data.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/provender/config.yaml)")
	rootCmd.PersistentFlags().Bool("offline", false,
		"skip the background registry refresh")
	rootCmd.PersistentFlags().Bool("disable-telemetry", false,
		"drop the telemetry header from refresh requests")
	rootCmd.PersistentFlags().Bool("debug", false,
		"enable debug logging to the configured log file")

	_ = viper.BindPFlag("offline", rootCmd.PersistentFlags().Lookup("offline"))
	_ = viper.BindPFlag("disable_telemetry", rootCmd.PersistentFlags().Lookup("disable-telemetry"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("offline", defaults.Offline)
	viper.SetDefault("registry_url", defaults.RegistryURL)
	viper.SetDefault("disable_telemetry", defaults.DisableTelemetry)
	viper.SetDefault("resolve_cache_ttl", defaults.ResolveCacheTTL)
	viper.SetDefault("log.enabled", defaults.Log.Enabled)
	viper.SetDefault("log.level", defaults.Log.Level)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .provender/config.yaml (current directory)
		// 2. ~/.config/provender/config.yaml (user config)
		if _, err := os.Stat(".provender/config.yaml"); err == nil {
			viper.SetConfigFile(".provender/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "provender"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .provender/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".provender/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = config.Defaults()
	unmarshalErr := viper.Unmarshal(&cfg)
	if unmarshalErr != nil {
		// Unmarshal may leave cfg partially populated
		cfg = config.Defaults()
	}

	initLogging()

	if unmarshalErr != nil {
		log.Warn(log.CatConfig, "Could not decode config, continuing with defaults",
			"path", viper.ConfigFileUsed(), "error", unmarshalErr)
		fmt.Fprintf(os.Stderr, "Warning: ignoring malformed config %s: %v\n",
			viper.ConfigFileUsed(), unmarshalErr)
	}
}

func initLogging() {
	debug, _ := rootCmd.PersistentFlags().GetBool("debug")
	if os.Getenv("PROVENDER_DEBUG") != "" {
		debug = true
	}
	if !cfg.Log.Enabled && !debug {
		return
	}

	logPath := cfg.Log.Path
	if logPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		logPath = filepath.Join(home, ".provender", "debug.log")
	}
	if _, err := log.Init(logPath); err != nil {
		return
	}
	log.SetEnabled(true)
	if debug {
		log.SetMinLevel(log.LevelDebug)
	} else {
		log.SetMinLevel(levelFromString(cfg.Log.Level))
	}
}

func levelFromString(s string) log.Level {
	switch s {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// configFilePath returns the loaded config file, or the default location when
// none was loaded.
func configFilePath() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	return ".provender/config.yaml"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
