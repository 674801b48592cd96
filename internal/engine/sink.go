package engine

import (
	"log/slog"

	"github.com/openchw/fieldsync/pkg/types"
)

// SlogSink is an EventSink that logs sync outcomes. The CLI uses it where
// the mobile app would render notifications.
type SlogSink struct {
	logger *slog.Logger
}

var _ types.EventSink = (*SlogSink)(nil)

// NewSlogSink creates a SlogSink writing to logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With(slog.String("component", "sync_events"))}
}

func (s *SlogSink) SyncStarted() {
	s.logger.Info("sync started")
}

func (s *SlogSink) EntryApplied(table, oldID, newID string) {
	if oldID != newID {
		s.logger.Info("entry applied",
			slog.String("table", table),
			slog.String("old_id", oldID),
			slog.String("new_id", newID))
		return
	}
	s.logger.Info("entry applied",
		slog.String("table", table), slog.String("id", newID))
}

func (s *SlogSink) EntryFailed(table, reason string) {
	s.logger.Warn("entry failed",
		slog.String("table", table), slog.String("reason", reason))
}

func (s *SlogSink) EntryPoisoned(table, id string, attempts int) {
	s.logger.Error("entry poisoned",
		slog.String("table", table),
		slog.String("id", id),
		slog.Int("attempts", attempts))
}

func (s *SlogSink) SyncFinished(applied, failed int) {
	s.logger.Info("sync finished",
		slog.Int("applied", applied), slog.Int("failed", failed))
}
