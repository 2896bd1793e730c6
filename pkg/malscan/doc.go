// Package malscan embeds malware feature extraction and classification in a Go
// program without running the HTTP service.
//
// # Classify a file
//
//	client, _ := malscan.New(ctx,
//	    malscan.WithModel("models/malware_classifier.onnx", malscan.FormatONNX),
//	)
//	defer client.Close()
//	report, _ := client.AnalyzeFile(ctx, "sample.exe")
//	if report.Verdict != nil && report.Verdict.Malicious {
//	    // quarantine
//	}
//
// # Classify precomputed features
//
//	v, _ := client.Predict(ctx, map[string]any{"ImageBase": 4194304, ...})
//
// Verdicts can be memoized in Valkey or Redis with WithRedisCache. Operations are
// logged through log/slog (WithLogger) and counted in Prometheus (WithPrometheus).
package malscan
