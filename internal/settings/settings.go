// Package settings is the live configuration surface of the scrobbler.
// Values live in the app_settings table and are read per decision, so an
// operator change through the HTTP API takes effect without a restart.
package settings

import (
	"database/sql"
	"strconv"
	"time"

	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/scrobble"
)

// Defaults applied whenever a key is missing or unparseable. Per-kind
// scrobbling is off until the operator enables it.
const (
	DefaultPollInterval     = 30 * time.Second
	DefaultWatchedThreshold = 80.0
)

// Known keys.
const (
	KeyPollInterval     = "poll_interval"     // seconds
	KeyWatchedThreshold = "watched_threshold" // percent
	KeyScrobbleMovies   = "scrobble_movies"
	KeyScrobbleEpisodes = "scrobble_episodes"
	KeyScrobbleMusic    = "scrobble_music"
	KeyAPIKey           = "api_key"
)

type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// Store reads and writes app settings. It implements scrobble.Settings.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

func New(db *sql.DB) *Store {
	return &Store{db: db, log: logging.Default().With("component", "settings")}
}

var _ scrobble.Settings = (*Store)(nil)

// PollInterval returns the timed-interval rule setting.
func (s *Store) PollInterval() time.Duration {
	v := s.value(KeyPollInterval, "")
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(secs) * time.Second
}

// WatchedThreshold returns the one-shot watched percentage.
func (s *Store) WatchedThreshold() float64 {
	v := s.value(KeyWatchedThreshold, "")
	threshold, err := strconv.ParseFloat(v, 64)
	if err != nil || threshold <= 0 || threshold > 100 {
		return DefaultWatchedThreshold
	}
	return threshold
}

// KindEnabled reports whether the user scrobbles this media kind.
func (s *Store) KindEnabled(kind scrobble.MediaKind) bool {
	switch kind {
	case scrobble.KindMovie:
		return s.boolValue(KeyScrobbleMovies)
	case scrobble.KindEpisode:
		return s.boolValue(KeyScrobbleEpisodes)
	case scrobble.KindTrack:
		return s.boolValue(KeyScrobbleMusic)
	default:
		return false
	}
}

// APIKey returns the Chronicle API key granted by pairing, or "".
func (s *Store) APIKey() string {
	return s.value(KeyAPIKey, "")
}

func (s *Store) SetAPIKey(key string) error {
	return s.Set(KeyAPIKey, key)
}

// Set updates or inserts one setting.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO app_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	s.log.Debug("setting updated", "key", key)
	return nil
}

// All returns every stored setting, ordered by key.
func (s *Store) All() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value, updated_at FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			s.log.Debug("scan setting failed", "err", err)
			continue
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// ValidSetting reports whether key/value is an accepted combination. Only
// known settings can be written through the HTTP API.
func ValidSetting(key, value string) bool {
	switch key {
	case KeyPollInterval:
		secs, err := strconv.Atoi(value)
		return err == nil && secs > 0
	case KeyWatchedThreshold:
		threshold, err := strconv.ParseFloat(value, 64)
		return err == nil && threshold > 0 && threshold <= 100
	case KeyScrobbleMovies, KeyScrobbleEpisodes, KeyScrobbleMusic:
		return value == "true" || value == "false"
	case KeyAPIKey:
		return true
	default:
		return false
	}
}

func (s *Store) value(key, def string) string {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Debug("setting read failed", "key", key, "err", err)
		}
		return def
	}
	return value
}

func (s *Store) boolValue(key string) bool {
	return s.value(key, "false") == "true"
}
