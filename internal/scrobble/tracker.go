package scrobble

import (
	"time"

	"chronicle-scrobbler/internal/logging"
)

// MinInterval is the hard floor: never send two scrobbles closer together
// than this, no matter what the other rules say. The one exception is a
// session that has never reported, which is due immediately.
const MinInterval = 15 * time.Second

// seekDelta is the position jump (in percentage points) that makes a report
// due on its own. The boundary counts: a delta of exactly 5.0 triggers.
const seekDelta = 5.0

// session is the bookkeeping state for one continuous playback of one media
// item. The metadata fields are captured at session start and never change;
// lastPercentage, watchedSent and lastReport advance only on a confirmed
// successful report.
type session struct {
	kind        MediaKind
	title       string
	season      int
	episode     int
	showTitle   string
	externalIDs map[string]string
	duration    float64

	lastPercentage float64
	watchedSent    bool
	lastReport     time.Time // zero means never, which forces the first report
	startedAt      time.Time
}

// SessionInfo is a read-only copy of the active session for status reporting.
type SessionInfo struct {
	Kind           MediaKind         `json:"mediaType"`
	Title          string            `json:"title"`
	Season         int               `json:"season,omitempty"`
	Episode        int               `json:"episode,omitempty"`
	ShowTitle      string            `json:"showTitle,omitempty"`
	ExternalIDs    map[string]string `json:"externalIds"`
	Duration       float64           `json:"totalTime"`
	LastPercentage float64           `json:"lastReportedProgress"`
	WatchedSent    bool              `json:"watchedSent"`
	LastReport     time.Time         `json:"lastReportAt"`
	StartedAt      time.Time         `json:"startedAt"`
}

// Tracker owns the single optional playback session and decides when a
// report is due. It performs no I/O and does no locking of its own: every
// call must happen under the Monitor's mutex.
type Tracker struct {
	settings Settings
	session  *session
	log      logging.Logger
}

func NewTracker(settings Settings) *Tracker {
	return &Tracker{
		settings: settings,
		log:      logging.Default().With("component", "tracker"),
	}
}

// Start replaces any existing session with a new one derived from the
// snapshot's constant fields. The caller has already filtered out kinds the
// user does not want scrobbled.
func (t *Tracker) Start(snap *Snapshot, now time.Time) {
	t.session = &session{
		kind:        snap.Kind,
		title:       snap.Title,
		season:      snap.Season,
		episode:     snap.Episode,
		showTitle:   snap.ShowTitle,
		externalIDs: snap.ExternalIDs,
		duration:    snap.Duration,
		startedAt:   now,
		// lastReport stays zero so the first due-evaluation reports immediately
	}
	t.log.Info("session started", "title", snap.Title, "kind", string(snap.Kind))
}

// End discards the session. Calling with no active session is a no-op.
func (t *Tracker) End() {
	if t.session != nil {
		t.log.Info("session ended", "title", t.session.title)
	}
	t.session = nil
}

func (t *Tracker) HasSession() bool {
	return t.session != nil
}

// Info returns a copy of the active session, or nil.
func (t *Tracker) Info() *SessionInfo {
	if t.session == nil {
		return nil
	}
	s := t.session
	return &SessionInfo{
		Kind:           s.kind,
		Title:          s.title,
		Season:         s.season,
		Episode:        s.episode,
		ShowTitle:      s.showTitle,
		ExternalIDs:    s.externalIDs,
		Duration:       s.duration,
		LastPercentage: s.lastPercentage,
		WatchedSent:    s.watchedSent,
		LastReport:     s.lastReport,
		StartedAt:      s.startedAt,
	}
}

// IsDue reports whether a scrobble should be sent right now.
func (t *Tracker) IsDue(snap *Snapshot, now time.Time) bool {
	if t.session == nil {
		return false
	}
	if snap.Paused {
		return false
	}

	// A session that has never reported bypasses the floor entirely: the
	// very first observation goes out immediately.
	if t.session.lastReport.IsZero() {
		return true
	}

	elapsed := now.Sub(t.session.lastReport)

	// Hard floor, short-circuits every other rule
	if elapsed < MinInterval {
		return false
	}

	// Rule 1: timed interval
	if elapsed >= t.settings.PollInterval() {
		return true
	}

	// Rule 2: significant seek / position jump
	delta := snap.Percentage - t.session.lastPercentage
	if delta < 0 {
		delta = -delta
	}
	if delta >= seekDelta {
		return true
	}

	// Rule 3: watched-threshold crossing, once per session
	if !t.session.watchedSent && snap.Percentage >= t.settings.WatchedThreshold() {
		return true
	}

	return false
}

// Commit records a confirmed successful report. Never call it on a mere
// decision to report. No-op without a session.
func (t *Tracker) Commit(snap *Snapshot, now time.Time) {
	if t.session == nil {
		return
	}
	if snap.Percentage >= t.settings.WatchedThreshold() {
		t.session.watchedSent = true
	}
	t.session.lastPercentage = snap.Percentage
	t.session.lastReport = now
	t.log.Debug("scrobble recorded", "progress", snap.Percentage)
}
