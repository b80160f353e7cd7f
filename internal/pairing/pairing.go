// Package pairing drives the Chronicle device-authentication flow: initiate
// a pairing code, poll until the user approves it on the Chronicle web UI,
// then persist the granted API key into the settings store.
package pairing

import (
	"context"
	"sync"
	"time"

	"chronicle-scrobbler/internal/chronicle"
	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/settings"
)

const pollInterval = 5 * time.Second

type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateDenied   State = "denied"
	StateExpired  State = "expired"
)

// Status is the externally visible pairing state. The API key itself never
// appears here; it goes straight into the settings store.
type Status struct {
	State           State     `json:"state"`
	DisplayCode     string    `json:"displayCode,omitempty"`
	VerificationURL string    `json:"verificationUrl,omitempty"`
	QRURL           string    `json:"qrUrl,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt,omitempty"`
}

type Manager struct {
	client     *chronicle.Client
	store      *settings.Store
	deviceName string
	log        logging.Logger

	mu      sync.Mutex
	state   State
	current *chronicle.DeviceAuth
	expires time.Time
	cancel  context.CancelFunc
}

func NewManager(client *chronicle.Client, store *settings.Store, deviceName string) *Manager {
	return &Manager{
		client:     client,
		store:      store,
		deviceName: deviceName,
		state:      StateIdle,
		log:        logging.Default().With("component", "pairing"),
	}
}

// Start initiates a new pairing flow. A flow already pending is returned
// as-is instead of being restarted, so repeated clicks on "connect" share
// one code.
func (m *Manager) Start() (Status, error) {
	m.mu.Lock()
	if m.state == StatePending {
		status := m.statusLocked()
		m.mu.Unlock()
		return status, nil
	}
	m.mu.Unlock()

	auth, err := m.client.StartDeviceAuth(m.deviceName)
	if err != nil {
		return Status{State: StateIdle}, err
	}

	expiresIn := time.Duration(auth.ExpiresInSeconds) * time.Second
	if expiresIn <= 0 {
		expiresIn = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.state = StatePending
	m.current = auth
	m.expires = time.Now().Add(expiresIn)
	m.cancel = cancel
	status := m.statusLocked()
	m.mu.Unlock()

	m.log.Info("device pairing initiated", "display_code", auth.DisplayCode)
	go m.pollLoop(ctx, auth.Code)

	return status, nil
}

// Status returns the current pairing state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Cancel abandons a pending flow.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.state == StatePending {
		m.state = StateIdle
		m.current = nil
	}
}

func (m *Manager) statusLocked() Status {
	status := Status{State: m.state}
	if m.current != nil && m.state == StatePending {
		status.DisplayCode = m.current.DisplayCode
		status.VerificationURL = m.current.VerificationURL
		status.QRURL = m.current.QRURL
		status.ExpiresAt = m.expires
	}
	return status
}

func (m *Manager) pollLoop(ctx context.Context, code string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		expired := time.Now().After(m.expires)
		m.mu.Unlock()
		if expired {
			m.finish(StateExpired)
			return
		}

		poll, err := m.client.PollDeviceAuth(code)
		if err != nil {
			m.log.Warn("pairing poll failed", "err", err)
			continue
		}

		switch poll.Status {
		case "approved":
			if poll.APIKey == "" {
				continue
			}
			if err := m.store.SetAPIKey(poll.APIKey); err != nil {
				m.log.Error("saving API key failed", "err", err)
				continue
			}
			m.log.Info("device pairing approved")
			m.finish(StateApproved)
			return
		case "denied":
			m.finish(StateDenied)
			return
		case "expired":
			m.finish(StateExpired)
			return
		}
	}
}

func (m *Manager) finish(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.current = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
