package scrobble

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type stubReader struct {
	mu        sync.Mutex
	snap      *Snapshot
	err       error
	panicNext bool
}

func (r *stubReader) Current() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicNext {
		r.panicNext = false
		panic("reader exploded")
	}
	return r.snap, r.err
}

func (r *stubReader) set(snap *Snapshot) {
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
}

type stubSink struct {
	mu    sync.Mutex
	calls int
	sent  []Report
	fail  bool
	gate  chan struct{} // when non-nil, Send blocks until closed
}

func (s *stubSink) Send(report Report) error {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	fail := s.fail
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return errors.New("sink down")
	}

	s.mu.Lock()
	s.sent = append(s.sent, report)
	s.mu.Unlock()
	return nil
}

func (s *stubSink) sentReports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestMonitor(reader *stubReader, sink *stubSink, clock *fakeClock) *Monitor {
	m := NewMonitor(reader, sink, &fakeSettings{enabled: allKinds()}, Options{})
	m.now = clock.Now
	return m
}

func TestOnStartOpensSessionAndScrobbles(t *testing.T) {
	reader := &stubReader{snap: movieSnap(0, false)}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	m.OnStart()

	if m.SessionInfo() == nil {
		t.Fatal("expected an active session")
	}
	sent := sink.sentReports()
	if len(sent) != 1 {
		t.Fatalf("expected 1 opening scrobble, got %d", len(sent))
	}
	if sent[0].MediaType != "movie" || sent[0].Title != "Heat" {
		t.Errorf("unexpected report: %+v", sent[0])
	}
	if info := m.SessionInfo(); info.LastReport.IsZero() {
		t.Error("opening scrobble should have been committed")
	}
}

func TestOnStartIgnoresDisabledAndUnknownKinds(t *testing.T) {
	reader := &stubReader{}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := NewMonitor(reader, sink, &fakeSettings{enabled: map[MediaKind]bool{KindMovie: true}}, Options{})
	m.now = clock.Now

	track := &Snapshot{Kind: KindTrack, Title: "Alive", Percentage: 1}
	reader.set(track)
	m.OnStart()
	if m.SessionInfo() != nil {
		t.Error("disabled kind must not open a session")
	}

	reader.set(&Snapshot{Kind: KindUnknown, Title: "???"})
	m.OnStart()
	if m.SessionInfo() != nil {
		t.Error("unknown kind must not open a session")
	}

	reader.set(nil)
	m.OnStart()
	if m.SessionInfo() != nil {
		t.Error("no media must not open a session")
	}

	if sink.calls != 0 {
		t.Errorf("expected no sink calls, got %d", sink.calls)
	}
}

func TestConcurrentAttemptsCommitExactlyOnce(t *testing.T) {
	reader := &stubReader{snap: movieSnap(10, false)}
	sink := &stubSink{gate: make(chan struct{})}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	// Install an already-due session (never reported) without triggering the
	// opening scrobble.
	m.mu.Lock()
	m.tracker.Start(reader.snap, clock.Now())
	m.mu.Unlock()

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.attempt(false)
		}()
	}

	// Let the racing attempts hit the gate, then release the sink.
	time.Sleep(50 * time.Millisecond)
	close(sink.gate)
	wg.Wait()

	if got := len(sink.sentReports()); got != 1 {
		t.Fatalf("expected exactly one committed send under %d concurrent attempts, got %d", n, got)
	}
	if info := m.SessionInfo(); info.LastReport.IsZero() {
		t.Error("the single send should have been committed")
	}

	// Baseline advanced: an immediate follow-up attempt is inside the floor.
	m.attempt(false)
	if got := len(sink.sentReports()); got != 1 {
		t.Errorf("floor should block the follow-up attempt, got %d sends", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	reader := &stubReader{snap: movieSnap(0, false)}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	step := func(offsetSec int, percentage float64) {
		clock.set(baseTime.Add(time.Duration(offsetSec) * time.Second))
		reader.set(movieSnap(percentage, false))
		m.attempt(false)
	}

	// t=0, 0%: opening scrobble via the never-reported bypass.
	m.OnStart()

	step(5, 3)   // floor not cleared: nothing
	step(20, 20) // delta 20 >= 5: report
	step(35, 25) // 15s elapsed = floor, delta 5 = boundary: report
	step(81, 82) // threshold crossing (and interval elapsed): report
	step(95, 83) // floor not cleared, threshold already fired: nothing

	sent := sink.sentReports()
	want := []float64{0, 20, 25, 82}
	if len(sent) != len(want) {
		t.Fatalf("expected %d reports, got %d (%+v)", len(want), len(sent), sent)
	}
	for i, p := range want {
		if sent[i].Progress != p {
			t.Errorf("report %d progress = %.1f, want %.1f", i, sent[i].Progress, p)
		}
	}

	info := m.SessionInfo()
	if info == nil || !info.WatchedSent {
		t.Error("watched threshold should be recorded as fired")
	}
}

func TestForcedFinalReport(t *testing.T) {
	reader := &stubReader{snap: movieSnap(0, false)}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	m.OnStart()

	// 5s later, inside the floor, and paused: a forced report still goes out.
	clock.set(baseTime.Add(5 * time.Second))
	reader.set(movieSnap(97, true))
	m.OnEnd()

	sent := sink.sentReports()
	if len(sent) != 2 {
		t.Fatalf("expected opening + final report, got %d", len(sent))
	}
	if sent[1].Progress != 97 {
		t.Errorf("final report progress = %.1f, want 97", sent[1].Progress)
	}
	if m.SessionInfo() != nil {
		t.Fatal("session must be destroyed after the final report")
	}

	// Session gone: further attempts are never due.
	reader.set(movieSnap(99, false))
	m.attempt(false)
	if got := len(sink.sentReports()); got != 2 {
		t.Errorf("expected no reports after session destruction, got %d", got)
	}
}

func TestStopAndErrorSignalsEndSession(t *testing.T) {
	for _, signal := range []string{"stop", "error"} {
		t.Run(signal, func(t *testing.T) {
			reader := &stubReader{snap: movieSnap(0, false)}
			sink := &stubSink{}
			clock := &fakeClock{t: baseTime}
			m := newTestMonitor(reader, sink, clock)

			m.OnStart()
			if signal == "stop" {
				m.OnStop()
			} else {
				m.OnError()
			}
			if m.SessionInfo() != nil {
				t.Error("expected session to be discarded")
			}
		})
	}
}

func TestSinkFailureLeavesBaselineUntouched(t *testing.T) {
	reader := &stubReader{snap: movieSnap(0, false)}
	sink := &stubSink{fail: true}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	m.OnStart()
	if info := m.SessionInfo(); info == nil || !info.LastReport.IsZero() {
		t.Fatal("failed send must not advance the baseline")
	}

	// The next attempt naturally retries because the baseline never moved.
	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	m.attempt(false)

	if got := len(sink.sentReports()); got != 1 {
		t.Fatalf("expected the retry to succeed, got %d sends", got)
	}
	if info := m.SessionInfo(); info.LastReport.IsZero() {
		t.Error("successful retry should commit")
	}
}

func TestPausedSnapshotNeverSends(t *testing.T) {
	reader := &stubReader{snap: movieSnap(0, true)}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	m.OnPause() // no-op by contract

	m.mu.Lock()
	m.tracker.Start(movieSnap(0, false), clock.Now())
	m.mu.Unlock()

	clock.set(baseTime.Add(time.Hour))
	m.attempt(false)
	if sink.calls != 0 {
		t.Errorf("paused snapshot must not reach the sink, got %d calls", sink.calls)
	}
}

func TestPollIterationSurvivesPanicAndError(t *testing.T) {
	reader := &stubReader{panicNext: true}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	m.safeAttempt() // recovered, not re-raised

	reader.mu.Lock()
	reader.err = errors.New("player unreachable")
	reader.mu.Unlock()
	m.safeAttempt()

	// Reader healthy again: the loop body still works.
	reader.mu.Lock()
	reader.err = nil
	reader.snap = movieSnap(10, false)
	reader.mu.Unlock()

	m.mu.Lock()
	m.tracker.Start(reader.snap, clock.Now())
	m.mu.Unlock()
	m.safeAttempt()

	if got := len(sink.sentReports()); got != 1 {
		t.Errorf("expected one send after recovery, got %d", got)
	}
}

func TestStartStopJoinsPollLoop(t *testing.T) {
	reader := &stubReader{}
	sink := &stubSink{}
	m := NewMonitor(reader, sink, &fakeSettings{enabled: allKinds()}, Options{
		Tick:     5 * time.Millisecond,
		JoinWait: time.Second,
	})

	m.Start()
	time.Sleep(25 * time.Millisecond)
	m.Stop()

	select {
	case <-m.done:
	default:
		t.Error("poll loop should be joined after Stop")
	}
}

func TestScrobbleEventsPublished(t *testing.T) {
	reader := &stubReader{snap: movieSnap(0, false)}
	sink := &stubSink{}
	clock := &fakeClock{t: baseTime}
	m := newTestMonitor(reader, sink, clock)

	m.OnStart()
	m.OnStop()

	var types []EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-m.Events():
			types = append(types, ev.Type)
		default:
			t.Fatalf("expected 3 events, got %d (%v)", len(types), types)
		}
	}

	want := []EventType{EventSessionStart, EventScrobbled, EventSessionEnd}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("event %d = %s, want %s", i, types[i], w)
		}
	}
}
