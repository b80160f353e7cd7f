package scrobble

import (
	"context"
	"sync"
	"time"

	"chronicle-scrobbler/internal/logging"
)

// Signals is the lifecycle surface consumed from the host player. The host
// adapter may invoke these from any goroutine, in any interleaving; the
// monitor serializes internally.
type Signals interface {
	OnStart()
	OnPause()
	OnResume()
	OnSeek()
	OnStop()
	OnError()
	OnEnd()
}

// defaultTick is the background poll cadence. It must stay strictly below
// MinInterval and below the smallest meaningful poll-interval setting so no
// due window is missed by more than one tick.
const defaultTick = 5 * time.Second

const eventBufferSize = 32

// Options tune a Monitor. Zero values fall back to defaults.
type Options struct {
	PlayerName string        // reported in the payload, default "Kodi"
	Tick       time.Duration // poll cadence, default 5s
	JoinWait   time.Duration // bounded wait for the poll loop on Stop, default 20s
}

// Monitor reconciles host lifecycle signals and the background ticker into
// rate-limited scrobble decisions against the Tracker, and performs the Sink
// I/O outside the state lock.
//
// Locking: mu guards the tracker (the whole session object, one lock for all
// of its fields). sendMu is a non-reentrant gate around the entire
// attempt-report procedure so two overlapping attempts can never both
// observe "due" before either commits; ordinary attempts bail out when the
// gate is held, forced attempts wait for it.
type Monitor struct {
	reader   SnapshotReader
	sink     Sink
	settings Settings
	tracker  *Tracker

	playerName string
	tick       time.Duration
	joinWait   time.Duration

	mu     sync.Mutex
	sendMu sync.Mutex

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	events chan Event
	log    logging.Logger
}

func NewMonitor(reader SnapshotReader, sink Sink, settings Settings, opts Options) *Monitor {
	if opts.PlayerName == "" {
		opts.PlayerName = "Kodi"
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.JoinWait <= 0 {
		opts.JoinWait = 20 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		reader:     reader,
		sink:       sink,
		settings:   settings,
		tracker:    NewTracker(settings),
		playerName: opts.PlayerName,
		tick:       opts.Tick,
		joinWait:   opts.JoinWait,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		events:     make(chan Event, eventBufferSize),
		log:        logging.Default().With("component", "monitor"),
	}
}

// Start launches the background poll loop.
func (m *Monitor) Start() {
	m.log.Info("poll loop starting", "tick", m.tick.String())
	go m.pollLoop()
}

// Stop winds the poll loop down and waits for it with a bounded timeout. A
// failed join is logged but never blocks process exit.
func (m *Monitor) Stop() {
	m.cancel()
	select {
	case <-m.done:
		m.log.Info("poll loop stopped")
	case <-time.After(m.joinWait):
		m.log.Warn("poll loop did not stop in time", "waited", m.joinWait.String())
	}
}

// Events exposes the monitor's event stream. The channel is buffered and
// never blocks the engine; a slow consumer loses events rather than stalling
// a scrobble decision.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// SessionInfo returns a copy of the active session for status reporting.
func (m *Monitor) SessionInfo() *SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker.Info()
}

// --- host lifecycle signals -------------------------------------------------

// OnStart begins a new scrobble session for the currently-playing item.
func (m *Monitor) OnStart() {
	snap, err := m.reader.Current()
	if err != nil {
		m.log.Warn("snapshot failed on playback start", "err", err)
		return
	}
	if snap == nil {
		return
	}
	if snap.Kind == KindUnknown {
		m.log.Debug("unknown media kind, not scrobbling")
		return
	}
	if !m.settings.KindEnabled(snap.Kind) {
		m.log.Info("scrobbling disabled for kind", "kind", string(snap.Kind))
		return
	}

	now := m.now()
	m.mu.Lock()
	m.tracker.Start(snap, now)
	info := m.tracker.Info()
	m.mu.Unlock()

	m.publish(Event{Type: EventSessionStart, Time: now, Session: info})

	// Opening scrobble: the fresh session has never reported, so the floor
	// bypass makes this due immediately.
	m.attemptWith(snap, false)
}

// OnPause needs no direct action: due-checks return false while the snapshot
// reports paused.
func (m *Monitor) OnPause() {
	m.log.Debug("playback paused, scrobbling suspended")
}

func (m *Monitor) OnResume() {
	m.attempt(false)
}

func (m *Monitor) OnSeek() {
	m.attempt(false)
}

func (m *Monitor) OnStop() {
	m.endSession()
}

func (m *Monitor) OnError() {
	m.log.Warn("playback error reported by host")
	m.endSession()
}

// OnEnd sends the guaranteed final report, then destroys the session.
func (m *Monitor) OnEnd() {
	m.attempt(true)
	m.endSession()
}

// --- internals --------------------------------------------------------------

func (m *Monitor) endSession() {
	m.mu.Lock()
	had := m.tracker.HasSession()
	m.tracker.End()
	m.mu.Unlock()
	if had {
		m.publish(Event{Type: EventSessionEnd, Time: m.now()})
	}
}

func (m *Monitor) attempt(force bool) {
	snap, err := m.reader.Current()
	if err != nil {
		m.log.Warn("snapshot failed", "err", err)
		return
	}
	m.attemptWith(snap, force)
}

// attemptWith runs one attempt-report procedure. Ordinary attempts return
// immediately when another attempt holds the gate; forced attempts (playback
// end) wait so the final report is never gated out.
func (m *Monitor) attemptWith(snap *Snapshot, force bool) {
	if force {
		m.sendMu.Lock()
	} else if !m.sendMu.TryLock() {
		return
	}
	defer m.sendMu.Unlock()

	if snap == nil {
		if force {
			m.log.Debug("no snapshot available for final report")
		}
		return
	}

	now := m.now()
	var report Report

	m.mu.Lock()
	var due bool
	if force {
		// Forced mode bypasses every rule, the paused flag included, as
		// long as a session exists.
		due = m.tracker.HasSession()
	} else {
		due = m.tracker.IsDue(snap, now)
	}
	if due {
		report = BuildReport(snap, m.playerName)
	}
	m.mu.Unlock()

	if !due {
		return
	}

	// Sink I/O happens outside both locks so host callbacks are never
	// blocked on the network.
	if err := m.sink.Send(report); err != nil {
		// No state mutation: the baseline did not advance, so the next
		// periodic or event-triggered attempt is the retry mechanism.
		m.log.Warn("scrobble rejected", "err", err)
		return
	}

	m.mu.Lock()
	m.tracker.Commit(snap, m.now())
	info := m.tracker.Info()
	m.mu.Unlock()

	m.publish(Event{Type: EventScrobbled, Time: m.now(), Report: &report, Session: info})
}

func (m *Monitor) pollLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.safeAttempt()
		}
	}
}

// safeAttempt shields the poll loop from a panicking collaborator: one bad
// iteration is logged, the loop lives on.
func (m *Monitor) safeAttempt() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("poll iteration panicked", "panic", r)
		}
	}()
	m.attempt(false)
}

func (m *Monitor) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
	}
}
