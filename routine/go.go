package routine

import (
	"log/slog"
)

// Catch run fn and return the recovered value if fn panicked
func Catch(fn func()) (cause any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			cause, panicked = r, true
		}
	}()

	fn()
	return nil, false
}

// WithRecovery run fn with recovery
// will log error and call cleanup with the cause if a panic happened
func WithRecovery(logger *slog.Logger, fn func(), cleanup func(cause any)) {
	cause, panicked := Catch(fn)
	if !panicked {
		return
	}
	logError(logger, cause)
	if cleanup != nil {
		cleanup(cause)
	}
}

func logError(logger *slog.Logger, cause any) {
	logger.Error("panic happened, routine exited", slog.Any("cause", cause))
}
