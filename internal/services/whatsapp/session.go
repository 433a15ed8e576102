package whatsapp

import (
	"sync"
	"time"
)

// SessionState mirrors the lifecycle of the browser-side WhatsApp Web
// session driven by active jobs.
type SessionState string

const (
	SessionIdle          SessionState = "idle"
	SessionWaitingForQR  SessionState = "waiting_for_qr"
	SessionAuthenticated SessionState = "authenticated"
	SessionLoggedOut     SessionState = "logged_out"
)

// SessionStatus is the wire shape returned by the status endpoint.
type SessionStatus struct {
	State     SessionState `json:"state"`
	Ready     bool         `json:"ready"`
	HasQR     bool         `json:"has_qr"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// Session tracks the most recent browser session observed by the driver.
// Jobs update it as they progress; the status and QR endpoints read it.
type Session struct {
	mu        sync.RWMutex
	state     SessionState
	qrPNG     string
	updatedAt time.Time
}

func NewSession() *Session {
	return &Session{state: SessionIdle}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.updatedAt = time.Now()
	if state != SessionWaitingForQR {
		s.qrPNG = ""
	}
}

// setQR records the latest QR screenshot as base64 PNG and moves the
// session into the waiting state.
func (s *Session) setQR(png string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionWaitingForQR
	s.qrPNG = png
	s.updatedAt = time.Now()
}

// QR returns the current QR screenshot, if one is pending.
func (s *Session) QR() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qrPNG, s.qrPNG != ""
}

func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStatus{
		State:     s.state,
		Ready:     s.state == SessionAuthenticated,
		HasQR:     s.qrPNG != "",
		UpdatedAt: s.updatedAt,
	}
}
