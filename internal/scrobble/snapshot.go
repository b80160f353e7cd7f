package scrobble

import "time"

// MediaKind classifies what the host player is playing.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindEpisode MediaKind = "episode"
	KindTrack   MediaKind = "track"
	KindUnknown MediaKind = "unknown"
)

// Snapshot is an immutable read of the host player state at a point in time.
// A nil *Snapshot means "no media playing", which is distinct from media at
// zero progress.
type Snapshot struct {
	Kind        MediaKind
	Title       string
	Year        int
	Season      int
	Episode     int
	ShowTitle   string
	ExternalIDs map[string]string // imdb > tmdb > tvdb > musicbrainz
	Elapsed     float64           // seconds
	Duration    float64           // seconds, 0 when the host reports none
	Percentage  float64           // 0.0-100.0
	Paused      bool
	LibraryID   int // host library database id, -1 when not in the library
}

// SnapshotReader queries the host's active-player state. It must be safe to
// call at high frequency without side effects. (nil, nil) means no media.
type SnapshotReader interface {
	Current() (*Snapshot, error)
}

// Sink delivers a report to the remote tracking service. A nil error means
// the remote acknowledged the report; any transport or non-2xx outcome is an
// error and must not panic past this boundary.
type Sink interface {
	Send(Report) error
}

// Settings is the live configuration surface the engine consults on every
// decision, so operator changes take effect without restart.
type Settings interface {
	PollInterval() time.Duration
	WatchedThreshold() float64
	KindEnabled(MediaKind) bool
}
