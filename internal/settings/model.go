// Package settings holds the authoritative settings record and the latest swatch list.
package settings

import (
	"sync"

	"github.com/sirupsen/logrus"

	"ledstrip-remote/internal/protocol"
)

// Sender transmits complete records.
type Sender interface {
	SendSettings(rec protocol.Settings, debounced bool) (bool, error)
}

// Model merges UI patches and inbound echoes into the current record.
type Model struct {
	// applyMu serializes merge+send so the stored and transmitted record never diverge.
	applyMu sync.Mutex

	mu       sync.RWMutex
	current  protocol.Settings
	swatches []string

	sender Sender
	log    logrus.FieldLogger
}

// NewModel returns a model starting from initial.
func NewModel(initial protocol.Settings, sender Sender, log logrus.FieldLogger) *Model {
	return &Model{current: initial, sender: sender, log: log}
}

// Current returns the current record.
func (m *Model) Current() protocol.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Swatches returns a copy of the latest swatch list.
func (m *Model) Swatches() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.swatches))
	copy(out, m.swatches)
	return out
}

// ApplyPartial merges patch over the current record, stores the result and sends it
// with the given debounce flag. The returned record is what was stored.
func (m *Model) ApplyPartial(patch protocol.Patch, debounced bool) (protocol.Settings, error) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	m.mu.Lock()
	next := m.current.Merge(patch)
	m.current = next
	m.mu.Unlock()

	_, err := m.sender.SendSettings(next, debounced)
	return next, err
}

// SendCurrent transmits the current record as a committed send.
func (m *Model) SendCurrent() error {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()
	_, err := m.sender.SendSettings(m.Current(), false)
	return err
}

// ApplyInboundEcho adopts the device's reported settings. Fields the echo did not
// supply keep their previous value.
func (m *Model) ApplyInboundEcho(echo protocol.Echo) protocol.Settings {
	if !echo.Complete() {
		m.log.Debugf("Partial echo, keeping previous values for %v", echo.Missing)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Merge(echo.Values)
	return m.current
}

// ApplyInboundSwatches replaces the swatch list wholesale.
func (m *Model) ApplyInboundSwatches(list []string) {
	fresh := make([]string, len(list))
	copy(fresh, list)
	m.mu.Lock()
	m.swatches = fresh
	m.mu.Unlock()
}
