package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Attempt runs an optional step. A returned error or a panic is logged and
// reported as ok == false; it never propagates to the caller.
func Attempt[T any](ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) (T, error)) (value T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "optional step panicked", "step", name, "panic", fmt.Sprint(r))
			var zero T
			value, ok = zero, false
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		logger.WarnContext(ctx, "optional step skipped", "step", name, "error", err)
		return v, false
	}
	return v, true
}
