package courier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/courier/pkg/slogx"
	"github.com/goccy/go-json"
)

// LoggingFilter logs every message passing through it and the outcome of the
// rest of the chain.
type LoggingFilter[T any] struct {
	logger *slog.Logger
}

// NewLoggingFilter creates a LoggingFilter. A nil logger uses slog.Default.
func NewLoggingFilter[T any](logger *slog.Logger) *LoggingFilter[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingFilter[T]{logger: logger.With(slogx.MessageType[T]())}
}

func (f *LoggingFilter[T]) Invoke(ctx context.Context, msg T, next Next[T]) error {
	start := time.Now()

	if f.logger.Enabled(ctx, slog.LevelDebug) {
		f.logger.DebugContext(ctx, "delivering message", slog.String("message", renderMessage(msg)))
	}

	err := next(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		f.logger.ErrorContext(ctx, "message delivery failed", slog.Duration("duration", duration), slogx.Error(err))
		return err
	}
	f.logger.DebugContext(ctx, "message delivered", slog.Duration("duration", duration))
	return nil
}

func renderMessage(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
