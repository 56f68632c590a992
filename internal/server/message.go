package server

import (
	"encoding/json"
	"fmt"

	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/protocol"
)

// Command represents an incoming JSON command from a WebSocket client.
type Command struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Message represents an outgoing JSON message sent to WebSocket clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// clientCommands maps browser command names onto agent commands.
var clientCommands = map[string]core.CommandType{
	"applyPatch":      core.CmdApplyPatch,
	"sendNow":         core.CmdSendNow,
	"applyPreset":     core.CmdApplyPreset,
	"setMode":         core.CmdSetMode,
	"setHue":          core.CmdSetHue,
	"loop":            core.CmdSetLoop,
	"runPattern":      core.CmdRunPattern,
	"stopPattern":     core.CmdStopPattern,
	"addSchedule":     core.CmdAddSchedule,
	"removeSchedule":  core.CmdRemoveSchedule,
	"getPatternCode":  core.CmdGetPatternCode,
	"savePatternCode": core.CmdSavePatternCode,
	"deletePattern":   core.CmdDeletePattern,
}

// ParseClientCommand decodes one browser frame. applyPatch payloads are checked and
// converted to a protocol.Patch here so bad field names never reach the agent.
func ParseClientCommand(raw []byte) (core.Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return core.Command{}, fmt.Errorf("decode command: %w", err)
	}
	t, ok := clientCommands[cmd.Type]
	if !ok {
		return core.Command{}, fmt.Errorf("unknown command type %q", cmd.Type)
	}
	if cmd.Payload == nil {
		cmd.Payload = map[string]interface{}{}
	}
	if t == core.CmdApplyPatch {
		fields, ok := cmd.Payload["patch"].(map[string]interface{})
		if !ok {
			return core.Command{}, fmt.Errorf("applyPatch: missing patch object")
		}
		p, err := protocol.ParsePatch(fields)
		if err != nil {
			return core.Command{}, fmt.Errorf("applyPatch: %w", err)
		}
		cmd.Payload["patch"] = p
	}
	return core.Command{Type: t, Payload: cmd.Payload}, nil
}
