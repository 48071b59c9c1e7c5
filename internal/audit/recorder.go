package audit

import (
	"context"
	"log/slog"
)

// Sink persists entries; satisfied by Repository.
type Sink interface {
	Insert(ctx context.Context, e Entry) error
}

// Recorder is the write side used by the other modules. Recording is
// best-effort and at-most-once: a failed insert is logged and swallowed so
// the primary action never blocks on the audit channel.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// Try records the entry, swallowing any failure. Safe on a nil receiver so
// tests can pass a nil recorder.
func (r *Recorder) Try(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Insert(ctx, e); err != nil {
		if r.logger != nil {
			r.logger.Warn("audit record dropped",
				slog.String("action", e.Action),
				slog.String("entity", e.Entity),
				slog.Any("error", err))
		}
	}
}
