package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/extract"
	"github.com/shashankrm11/malscan/internal/generator"
)

// FeaturesSuffix is appended to the input file stem to name extract output.
const FeaturesSuffix = "_features.json"

func newExtractCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract features from a file into <stem>_features.json",
		Long: `Sniff the file type, extract the features for that type and write them as
indented JSON next to the input. Nothing is written when no features could be
extracted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			return runExtract(cmd, args[0], v.GetString("out"), v.GetInt64("max-size"))
		},
	}
	cmd.Flags().String("out", "", "Output path (default: <input stem>_features.json)")
	cmd.Flags().Int64("max-size", 64<<20, "Largest file to read, in bytes")
	return cmd
}

func runExtract(cmd *cobra.Command, path, out string, limit int64) error {
	logger := loggerFor(cmd)

	kind, features, err := extract.ExtractFile(path, limit)
	if err != nil {
		return err
	}
	logger.Info("Extracted features",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.Int("features", features.Len()),
	)

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Processing as %s file...\n", kind)

	if features.Len() == 0 {
		_, _ = fmt.Fprintln(w, "No features extracted. JSON file not created.")
		return nil
	}

	if out == "" {
		out = OutputPath(path)
	}
	data, err := generator.MarshalIndent(features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(out), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	_, _ = fmt.Fprintf(w, "JSON file generated: %s\n", out)
	return nil
}

// OutputPath returns the default extract output for input: its path without the
// extension, suffixed with _features.json.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + FeaturesSuffix
}
