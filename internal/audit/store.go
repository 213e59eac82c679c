// Package audit archives moderation incidents in PostgreSQL so staff can
// review who was warned, when, and why after the bot has deleted the
// offending messages.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/whisper/chillbot/internal/moderation"
)

// validReasons is the set of allowed reason values, matching the CHECK
// constraint on the moderation_incidents table.
var validReasons = map[string]bool{
	moderation.ReasonBannedWord: true,
	moderation.ReasonRepeatSpam: true,
}

// Store manages moderation incidents in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new incident store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an incident. Incidents are keyed by ID, so a redelivered
// incident is ignored. It reports whether a row was written.
func (s *Store) Create(ctx context.Context, inc moderation.Incident) (bool, error) {
	if !validReasons[inc.Reason] {
		return false, fmt.Errorf("audit: invalid reason %q", inc.Reason)
	}
	if inc.ID == "" || inc.UserID == "" {
		return false, fmt.Errorf("audit: incident missing id or user")
	}

	const query = `
		INSERT INTO moderation_incidents
			(id, guild_id, channel_id, message_id, user_id, reason, term, warnings, flagged, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		inc.ID,
		inc.GuildID,
		inc.ChannelID,
		inc.MessageID,
		inc.UserID,
		inc.Reason,
		inc.Term,
		inc.Warnings,
		inc.Flagged,
		time.Unix(inc.Ts, 0).UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("audit: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("audit: rows affected: %w", err)
	}
	return n > 0, nil
}

// CountRecent returns the number of incidents recorded for a user within
// the given time window.
func (s *Store) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_incidents
		WHERE user_id = $1
		  AND occurred_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}
