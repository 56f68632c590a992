package core

import "ledstrip-remote/internal/protocol"

// Snapshot is everything the UI boundary renders at one instant.
type Snapshot struct {
	Settings          protocol.Settings `json:"settings"`
	Swatches          []string          `json:"swatches"`
	Connection        string            `json:"connection"`
	Notification      string            `json:"notification"`
	ErrorNotification string            `json:"errorNotification"`
	Loop              bool              `json:"loop"`
	RunningPattern    string            `json:"runningPattern"`
}
