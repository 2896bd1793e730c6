// Package commands implements the malscan operator CLI.
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logpkg "github.com/shashankrm11/malscan/internal/logger"
	"github.com/shashankrm11/malscan/internal/version"
)

// EnvPrefix prefixes environment overrides, e.g. MALSCAN_SERVER.
const EnvPrefix = "MALSCAN"

// NewRootCommand builds the malscan command tree. Each call gets its own viper
// instance so commands can be executed repeatedly in tests.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "malscan",
		Short: "Malware feature extraction and classification",
		Long: `malscan extracts static features from PE, PDF, image and generic files,
classifies PE files with a trained model, and talks to a running malscan API.`,
		Version:       version.String(),
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(v); err != nil {
				return err
			}
			logger, err := logpkg.NewLogger("cli", v.GetString("log_level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			cmd.SetContext(logpkg.ContextWithLogger(cmd.Context(), logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			_ = logpkg.FromContext(cmd.Context()).Sync()
		},
	}

	root.PersistentFlags().String("config", "", "Configuration file path (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "warn", "Logging level (debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newExtractCommand(v),
		newGenerateCommand(v),
		newPredictCommand(v),
		newAnalyzeCommand(v),
	)
	return root
}

// loadConfig reads the optional config file and enables MALSCAN_* overrides.
func loadConfig(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// bindFlags exposes a subcommand's flags through viper, so config keys and
// environment variables use the flag names.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

func loggerFor(cmd *cobra.Command) *zap.Logger {
	return logpkg.FromContext(cmd.Context())
}
