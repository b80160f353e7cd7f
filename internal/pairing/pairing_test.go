package pairing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"chronicle-scrobbler/internal/chronicle"
	"chronicle-scrobbler/internal/db"
	"chronicle-scrobbler/internal/settings"
)

func testStore(t *testing.T) *settings.Store {
	t.Helper()
	dbh, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	dbh.SetMaxOpenConns(1)
	if _, err := dbh.Exec(`CREATE TABLE app_settings (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	return settings.New(dbh)
}

func pairingServer(t *testing.T, starts *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/device" {
			starts.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"code":             "abc123",
				"displayCode":      "ABC-123",
				"verificationUrl":  "https://chronicle.example/pair",
				"expiresInSeconds": 600,
			}})
			return
		}
		http.NotFound(w, r)
	}))
}

func TestStartSharesPendingFlow(t *testing.T) {
	var starts atomic.Int64
	srv := pairingServer(t, &starts)
	defer srv.Close()

	store := testStore(t)
	m := NewManager(chronicle.New(srv.URL, store.APIKey), store, "living-room")
	defer m.Cancel()

	first, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	if first.State != StatePending || first.DisplayCode != "ABC-123" {
		t.Fatalf("first start = %+v", first)
	}

	// A second click while pending must reuse the same code.
	second, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	if second.DisplayCode != first.DisplayCode {
		t.Errorf("pending flow not shared: %q vs %q", second.DisplayCode, first.DisplayCode)
	}
	if got := starts.Load(); got != 1 {
		t.Errorf("server saw %d initiations, want 1", got)
	}
}

func TestStatusReflectsState(t *testing.T) {
	var starts atomic.Int64
	srv := pairingServer(t, &starts)
	defer srv.Close()

	store := testStore(t)
	m := NewManager(chronicle.New(srv.URL, store.APIKey), store, "living-room")
	defer m.Cancel()

	if got := m.Status(); got.State != StateIdle {
		t.Fatalf("fresh manager state = %s", got.State)
	}

	if _, err := m.Start(); err != nil {
		t.Fatal(err)
	}
	status := m.Status()
	if status.State != StatePending {
		t.Errorf("state after start = %s", status.State)
	}
	if status.VerificationURL == "" || status.ExpiresAt.IsZero() {
		t.Errorf("pending status incomplete: %+v", status)
	}
}

func TestCancelAbandonsPendingFlow(t *testing.T) {
	var starts atomic.Int64
	srv := pairingServer(t, &starts)
	defer srv.Close()

	store := testStore(t)
	m := NewManager(chronicle.New(srv.URL, store.APIKey), store, "living-room")

	if _, err := m.Start(); err != nil {
		t.Fatal(err)
	}
	m.Cancel()

	status := m.Status()
	if status.State != StateIdle {
		t.Errorf("state after cancel = %s", status.State)
	}
	if status.DisplayCode != "" {
		t.Errorf("cancelled status must not carry a code: %+v", status)
	}

	m.Cancel() // idempotent
}

func TestStartFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := testStore(t)
	m := NewManager(chronicle.New(srv.URL, store.APIKey), store, "living-room")

	if _, err := m.Start(); err == nil {
		t.Fatal("expected error from failing initiation")
	}
	if got := m.Status(); got.State != StateIdle {
		t.Errorf("failed start must leave state idle, got %s", got.State)
	}
}
