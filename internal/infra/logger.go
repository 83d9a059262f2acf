package infra

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"deploy-migrate/config"
)

// TraceHandler はスパンのトレースIDをログに付与するslogハンドラ。
// projectID が設定されている場合は Cloud Logging の相関フィールドも付与する。
type TraceHandler struct {
	slog.Handler
	projectID string
}

// NewTraceHandler はトレース情報付きのslogハンドラを生成する。
func NewTraceHandler(handler slog.Handler, projectID string) *TraceHandler {
	return &TraceHandler{Handler: handler, projectID: projectID}
}

// Handle はスパンが有効な場合のみトレース情報を付与する。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID := sc.TraceID().String()
		r.AddAttrs(slog.String("trace", traceID), slog.String("spanId", sc.SpanID().String()))
		if h.projectID != "" {
			r.AddAttrs(
				slog.String("logging.googleapis.com/trace", "projects/"+h.projectID+"/traces/"+traceID),
				slog.String("logging.googleapis.com/spanId", sc.SpanID().String()),
			)
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs は属性を追加した新しいハンドラを返す。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewTraceHandler(h.Handler.WithAttrs(attrs), h.projectID)
}

// WithGroup はグループを追加した新しいハンドラを返す。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return NewTraceHandler(h.Handler.WithGroup(name), h.projectID)
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はINFO。
func ParseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger はグローバルロガーを設定する。トレースが有効な場合のみトレース情報を付与する。
// CLIでは進捗表示と混ざらないよう w に標準エラー出力を渡す。
func SetupLogger(cfg *config.Config, w io.Writer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})
	if cfg.OtelEnabled {
		handler = NewTraceHandler(handler, cfg.GoogleCloudProject)
	}
	slog.SetDefault(slog.New(handler))
}
