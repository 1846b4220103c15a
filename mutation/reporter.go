package mutation

import (
	"context"

	"github.com/rs/zerolog"
)

// Report describes a failed mutation.
type Report struct {
	Err     error
	Context map[string]any
	Feature string
}

// Reporter receives transport failures of mutations. Calls are fire and
// forget.
type Reporter interface {
	Report(ctx context.Context, r Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Report)

func (f ReporterFunc) Report(ctx context.Context, r Report) { f(ctx, r) }

// LogReporter writes reports to a logger.
type LogReporter struct {
	Logger zerolog.Logger
}

func (l LogReporter) Report(ctx context.Context, r Report) {
	l.Logger.Error().
		Err(r.Err).
		Str("feature", r.Feature).
		Fields(r.Context).
		Msg("mutation failed")
}
