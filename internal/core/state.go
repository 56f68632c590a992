package core

import "sync"

// State holds the connection and notification side of what the UI displays. The
// settings record and swatches live in the settings model.
type State struct {
	mu                sync.RWMutex
	Connection        string
	Notification      string
	ErrorNotification string
	Loop              bool
	RunningPattern    string

	errorSeq uint64
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{Connection: "disconnected"}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Connection:        s.Connection,
		Notification:      s.Notification,
		ErrorNotification: s.ErrorNotification,
		Loop:              s.Loop,
		RunningPattern:    s.RunningPattern,
	}
}

// SetConnection records the connection state name and reports whether it changed.
func (s *State) SetConnection(connection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Connection == connection {
		return false
	}
	s.Connection = connection
	return true
}

// SetNotification sets the informational notification.
func (s *State) SetNotification(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notification = msg
}

// SetErrorNotification sets the transient error notification and returns a token for
// clearing exactly this notification later.
func (s *State) SetErrorNotification(msg string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorSeq++
	s.ErrorNotification = msg
	return s.errorSeq
}

// ClearErrorNotification clears the error notification if no newer one was set since
// seq was handed out. It reports whether it cleared.
func (s *State) ClearErrorNotification(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.errorSeq {
		return false
	}
	s.ErrorNotification = ""
	return true
}

// SetLoop records whether loop mode is on.
func (s *State) SetLoop(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loop = on
}

// SetRunningPattern updates the running pattern state.
func (s *State) SetRunningPattern(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningPattern = pattern
}
