package commands

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shashankrm11/malscan/internal/extract"
	"github.com/shashankrm11/malscan/pkg/malscan"
)

// report is the JSON printed by analyze. It matches the API's /analyze body.
type report struct {
	ScanID      string         `json:"scan_id"`
	FileName    string         `json:"file_name"`
	FileType    malscan.Kind   `json:"file_type"`
	Size        int            `json:"size"`
	Features    map[string]any `json:"features"`
	Prediction  *int           `json:"prediction,omitempty"`
	Probability *float64       `json:"probability,omitempty"`
}

func newAnalyzeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract and classify a file offline",
		Long: `Sniff, extract and, for PE files, classify with a local model. Without --model
only the features are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			r, err := runAnalyze(cmd, args[0], v)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(r)
		},
	}
	cmd.Flags().String("model", "", "Path to the trained model")
	cmd.Flags().String("format", string(malscan.FormatONNX), "Model format (onnx, linear)")
	cmd.Flags().String("onnx-library", "", "Path to the onnxruntime shared library")
	cmd.Flags().Float64("threshold", 0.5, "Probability at or above which a file is malicious")
	cmd.Flags().Int64("max-size", 64<<20, "Largest file to read, in bytes")
	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, v *viper.Viper) (report, error) {
	modelPath := v.GetString("model")
	if modelPath == "" {
		return extractOnly(path, v.GetInt64("max-size"))
	}

	format := malscan.Format(v.GetString("format"))
	if format != malscan.FormatONNX && format != malscan.FormatLinear {
		return report{}, fmt.Errorf("unknown model format %q", format)
	}

	opts := []malscan.Option{
		malscan.WithModel(modelPath, format),
		malscan.WithThreshold(v.GetFloat64("threshold")),
		malscan.WithMaxFileSize(v.GetInt64("max-size")),
	}
	if lib := v.GetString("onnx-library"); lib != "" {
		opts = append(opts, malscan.WithONNXLibrary(lib))
	}

	client, err := malscan.New(cmd.Context(), opts...)
	if err != nil {
		return report{}, err
	}
	defer client.Close()

	r, err := client.AnalyzeFile(cmd.Context(), path)
	if err != nil {
		return report{}, err
	}
	out := report{
		ScanID:   r.ScanID,
		FileName: r.Name,
		FileType: r.Kind,
		Size:     r.Size,
		Features: r.Features,
	}
	if r.Verdict != nil {
		label, p := r.Verdict.Label, r.Verdict.Probability
		out.Prediction = &label
		out.Probability = &p
	}
	return out, nil
}

func extractOnly(path string, limit int64) (report, error) {
	a, err := extract.ReadArtifact(path, limit)
	if err != nil {
		return report{}, err
	}
	kind, features := malscan.Extract(a.Data)
	if len(features) == 0 {
		return report{}, fmt.Errorf("%s: %w", path, malscan.ErrNoFeatures)
	}
	return report{
		ScanID:   uuid.NewString(),
		FileName: a.Path,
		FileType: kind,
		Size:     len(a.Data),
		Features: features,
	}, nil
}
