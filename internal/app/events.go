package app

import (
	"context"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/ports"
	"upbitSignalBot/internal/telemetry"
)

// eventSink fans a lifecycle event out to the in-memory tracker and the
// persistent journal. Journal failures are logged and swallowed; trading
// never stops because the event database hiccuped.
type eventSink struct {
	logger  ports.Logger
	tracker *telemetry.Tracker
	journal ports.EventJournal
}

func (s *eventSink) record(ctx context.Context, kind, market, message string, roi float64, level string) {
	if s.tracker != nil {
		s.tracker.AddEvent(level, message)
	}
	if s.journal == nil {
		return
	}
	event := &domain.LifecycleEvent{
		Kind:    kind,
		Market:  market,
		Message: message,
		ROI:     roi,
		Level:   level,
	}
	if _, err := s.journal.Record(ctx, event); err != nil {
		s.logger.Error(ctx, err, "Failed to journal lifecycle event", map[string]interface{}{"kind": kind})
	}
}
