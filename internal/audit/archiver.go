package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chillbot/internal/metrics"
	"github.com/whisper/chillbot/internal/moderation"
)

// Recorder is the subset of Store the Archiver needs.
type Recorder interface {
	Create(ctx context.Context, inc moderation.Incident) (bool, error)
	CountRecent(ctx context.Context, userID string, window time.Duration) (int, error)
}

// ArchiverConfig controls repeat-offender reporting.
type ArchiverConfig struct {
	OffenderWindow    time.Duration // look-back for repeat offenders
	OffenderThreshold int           // incidents in the window that trigger a report
	WriteTimeout      time.Duration // per-incident database deadline
}

// DefaultArchiverConfig returns sensible defaults.
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		OffenderWindow:    24 * time.Hour,
		OffenderThreshold: 3,
		WriteTimeout:      5 * time.Second,
	}
}

// Archiver writes incidents to the archive and logs users who keep
// offending.
type Archiver struct {
	store  Recorder
	config ArchiverConfig
	logger *zap.Logger
}

// NewArchiver creates an Archiver over store.
func NewArchiver(store Recorder, config ArchiverConfig, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, config: config, logger: logger}
}

// Archive records inc. A redelivered incident is counted as a duplicate and
// not reported twice.
func (a *Archiver) Archive(ctx context.Context, inc moderation.Incident) error {
	if a.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.WriteTimeout)
		defer cancel()
	}

	written, err := a.store.Create(ctx, inc)
	if err != nil {
		metrics.IncidentsArchived.WithLabelValues("error").Inc()
		a.logger.Error("failed to archive incident",
			zap.String("incident_id", inc.ID), zap.Error(err))
		return err
	}
	if !written {
		metrics.IncidentsArchived.WithLabelValues("duplicate").Inc()
		a.logger.Debug("duplicate incident", zap.String("incident_id", inc.ID))
		return nil
	}
	metrics.IncidentsArchived.WithLabelValues("ok").Inc()
	a.logger.Info("incident archived",
		zap.String("incident_id", inc.ID),
		zap.String("user_id", inc.UserID),
		zap.String("reason", inc.Reason),
		zap.Int("warnings", inc.Warnings))

	if a.config.OffenderThreshold <= 0 {
		return nil
	}
	n, err := a.store.CountRecent(ctx, inc.UserID, a.config.OffenderWindow)
	if err != nil {
		a.logger.Warn("failed to count recent incidents", zap.String("user_id", inc.UserID), zap.Error(err))
		return nil
	}
	if n >= a.config.OffenderThreshold {
		a.logger.Warn("repeat offender",
			zap.String("user_id", inc.UserID),
			zap.String("guild_id", inc.GuildID),
			zap.Int("incidents", n),
			zap.Duration("window", a.config.OffenderWindow))
	}
	return nil
}
