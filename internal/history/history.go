// Package history keeps an audit trail of committed scrobbles. It is
// write-only from the engine's point of view: nothing here ever feeds back
// into a scrobble decision.
package history

import (
	"database/sql"
	"time"

	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/scrobble"
)

type Entry struct {
	ID        int64   `json:"id"`
	MediaType string  `json:"mediaType"`
	Title     string  `json:"title"`
	ShowTitle string  `json:"showTitle,omitempty"`
	Season    int     `json:"season,omitempty"`
	Episode   int     `json:"episode,omitempty"`
	Progress  float64 `json:"progress"`
	SentAt    string  `json:"sentAt"`
}

type Recorder struct {
	db  *sql.DB
	log logging.Logger
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, log: logging.Default().With("component", "history")}
}

// Record persists one committed scrobble. Events that carry no report are
// ignored.
func (r *Recorder) Record(ev scrobble.Event) {
	if ev.Type != scrobble.EventScrobbled || ev.Report == nil {
		return
	}
	rep := ev.Report
	_, err := r.db.Exec(`
		INSERT INTO scrobble_log (media_type, title, show_title, season, episode, progress, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rep.MediaType, rep.Title, rep.ShowTitle, rep.Season, rep.Episode, rep.Progress,
		ev.Time.UTC().Format(time.RFC3339))
	if err != nil {
		r.log.Warn("recording scrobble failed", "err", err)
	}
}

// Recent returns the newest entries, most recent first.
func (r *Recorder) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, media_type, title, show_title, season, episode, progress, sent_at
		FROM scrobble_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MediaType, &e.Title, &e.ShowTitle, &e.Season, &e.Episode, &e.Progress, &e.SentAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
