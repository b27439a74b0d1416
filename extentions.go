package multisched

import (
	"log/slog"
)

type LogFailureHandler struct {
	Logger *slog.Logger
}

func (d LogFailureHandler) CatchFailure(unit string, e error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("action failed", slog.String("unit", unit), slog.Any("cause", e))
}

type DiscardFailureHandler struct {
}

func (d DiscardFailureHandler) CatchFailure(unit string, e error) {
}

// PanicFailureHandler escalates every failure. The unit that reported it
// stops ticking and refuses further starts.
type PanicFailureHandler struct {
}

func (d PanicFailureHandler) CatchFailure(unit string, e error) {
	panic(e)
}

// DiscardDropHandler ignores drops. They are still counted in Stats.
type DiscardDropHandler struct {
}

func (d DiscardDropHandler) TickDropped(unit string, e error) {
}
