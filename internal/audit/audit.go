// Package audit はデプロイ時マイグレーションの監査ログを提供する。
package audit

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果
const (
	ResultSuccess  = "SUCCESS"
	ResultFailed   = "FAILED"
	ResultDeclined = "DECLINED"
)

// Entry は監査ログの一件分。
type Entry struct {
	RunID     string `json:"run_id,omitempty"`
	Operation string `json:"operation"`
	AppLabel  string `json:"app_label"`
	StopPoint string `json:"stop_point,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// Write は監査ログを出力する。
func Write(ctx context.Context, runID, operation, appLabel, stopPoint, result string) {
	entry := Entry{
		RunID:     runID,
		Operation: operation,
		AppLabel:  appLabel,
		StopPoint: stopPoint,
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	slog.InfoContext(ctx, "deploy migrate operation completed",
		"run_id", entry.RunID,
		"operation", entry.Operation,
		"app_label", entry.AppLabel,
		"stop_point", entry.StopPoint,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	)
}
