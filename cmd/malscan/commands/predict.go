package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultServer is the address of a locally running malscan API.
const DefaultServer = "http://localhost:5000"

// apiError mirrors the API error body.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newPredictCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <features.json>",
		Short: "POST a feature file to a running API's /predict endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
			defer cancel()
			return runPredict(ctx, cmd, args[0], v.GetString("server"))
		},
	}
	cmd.Flags().String("server", DefaultServer, "Base URL of the malscan API")
	cmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")
	return cmd
}

func runPredict(ctx context.Context, cmd *cobra.Command, path, server string) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	url := strings.TrimRight(server, "/") + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	loggerFor(cmd).Info("Predict request completed",
		zap.String("file", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		var e apiError
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s (%d %s)", filepath.Base(path), e.Error, resp.StatusCode, e.Code)
		}
		return fmt.Errorf("%s: unexpected status %d", filepath.Base(path), resp.StatusCode)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", filepath.Base(path), bytes.TrimSpace(respBody))
	return nil
}
