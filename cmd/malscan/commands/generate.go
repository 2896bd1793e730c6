package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/generator"
)

func newGenerateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic feature files for exercising /predict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			types, err := generator.ParseTypes(v.GetString("types"))
			if err != nil {
				return err
			}
			seed := v.GetUint64("seed")
			if !cmd.Flags().Changed("seed") && !v.IsSet("seed") {
				seed = uint64(time.Now().UnixNano())
			}

			paths, err := generator.New(seed).WriteFiles(v.GetString("out"), types, v.GetInt("per-type"))
			if err != nil {
				return err
			}
			loggerFor(cmd).Info("Generated feature files",
				zap.Uint64("seed", seed),
				zap.Int("files", len(paths)),
			)
			for _, p := range paths {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().String("out", "test_files", "Output directory")
	cmd.Flags().String("types", "exe,pdf,txt", "Comma-separated profiles (exe, pdf, txt)")
	cmd.Flags().Int("per-type", 5, "Files per profile")
	cmd.Flags().Uint64("seed", 0, "Random seed (default: time based)")
	return cmd
}
