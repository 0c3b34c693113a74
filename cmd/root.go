// Package cmd wires the doorknock commands: contact runs a batch,
// report exports the history, journal inspects attempts.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/observability"
)

var cfgFile string

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "doorknock",
	Short:   "Doorknock submits contact requests on rental listings for you.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Runs before every command: configuration first, then logging.
		cfg, err := loadConfig()
		if err != nil {
			// A fallback logger so the failure itself is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "doorknock"})
			return err
		}

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting doorknock", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command under the signal-aware context from
// main, so Ctrl-C cancels in-flight attempts cleanly.
func Execute(ctx context.Context) {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml, then ~/.doorknock/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newContactCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig primes the global viper with defaults, the config file and
// the DOORKNOCK_* environment, then unmarshals and validates. Commands
// that bind flags re-unmarshal in RunE so flag overrides win.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".doorknock"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Local .env files feed portal credentials and the database URL into
	// the environment before viper reads it. Absence is not an error.
	_ = godotenv.Load()

	v.SetEnvPrefix("DOORKNOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment carry the run.
	}

	return config.NewConfigFromViper(v)
}
