package agent

import (
	"fmt"
	"strconv"

	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/presets"
	"ledstrip-remote/internal/protocol"
)

func (a *Agent) handleCommand(cmd core.Command) {
	a.log.Debugf("Handling command: %s with payload: %v", cmd.Type, cmd.Payload)

	switch cmd.Type {
	case core.CmdApplyPatch:
		patch, err := payloadPatch(cmd.Payload)
		if err != nil {
			a.log.Warnf("Rejected patch: %v", err)
			return
		}
		a.applyPatch(patch, payloadBool(cmd.Payload, "debounced"))

	case core.CmdSendNow:
		if err := a.model.SendCurrent(); err != nil {
			a.log.Debugf("Send now failed: %v", err)
		}

	case core.CmdApplyPreset:
		p, err := presets.Lookup(payloadString(cmd.Payload, "name"))
		if err != nil {
			a.log.Warnf("Preset error: %v", err)
			return
		}
		a.log.Infof("Applying preset '%s'", p.Name)
		a.applyPatch(p.Patch, false)

	case core.CmdSetMode:
		m, err := protocol.ParseLedMode(payloadString(cmd.Payload, "ledMode"))
		if err != nil {
			a.log.Warnf("Mode error: %v", err)
			return
		}
		a.applyPatch(presets.ModePatch(m), false)

	case core.CmdSetHue:
		field := protocol.Field(payloadString(cmd.Payload, "field"))
		if field == "" {
			field = protocol.FieldHue
		}
		if field != protocol.FieldHue && field != protocol.FieldHue2 {
			a.log.Warnf("setHue: %q is not a hue field", field)
			return
		}
		deg, ok := payloadFloat(cmd.Payload, "degrees")
		if !ok {
			a.log.Warn("setHue: missing degrees")
			return
		}
		a.applyPatch(protocol.Patch{field: protocol.HueFromDegrees(deg)}, payloadBool(cmd.Payload, "debounced"))

	case core.CmdSetLoop:
		a.setLoop(payloadBool(cmd.Payload, "on"))

	case core.CmdLoopStep:
		if !a.state.Clone().Loop {
			return
		}
		a.loopStep()

	case core.CmdRunPattern:
		if err := a.luaEngine.RunPattern(payloadString(cmd.Payload, "name")); err != nil {
			a.log.Warnf("Run pattern: %v", err)
		}

	case core.CmdStopPattern:
		a.luaEngine.StopCurrentPattern()

	case core.CmdAddSchedule:
		spec, command := payloadString(cmd.Payload, "spec"), payloadString(cmd.Payload, "command")
		if _, err := a.scheduler.Add(spec, command); err != nil {
			a.log.Warnf("Add schedule: %v", err)
			return
		}
		a.publishSchedules()

	case core.CmdRemoveSchedule:
		id, err := payloadID(cmd.Payload)
		if err != nil {
			a.log.Warnf("Remove schedule: %v", err)
			return
		}
		if err := a.scheduler.Remove(id); err != nil {
			a.log.Warnf("Remove schedule: %v", err)
			return
		}
		a.publishSchedules()

	case core.CmdGetPatternCode:
		name := payloadString(cmd.Payload, "name")
		content, err := a.luaEngine.GetPatternCode(name)
		if err != nil {
			a.log.Warnf("Error getting pattern code: %v", err)
			return
		}
		a.eventBus.Publish(core.Event{
			Type:    core.PatternCodeEvent,
			Payload: map[string]string{"name": name, "code": content},
		})

	case core.CmdSavePatternCode:
		name, code := payloadString(cmd.Payload, "name"), payloadString(cmd.Payload, "code")
		if err := a.luaEngine.SavePatternCode(name, code); err != nil {
			a.log.Warnf("Error saving pattern: %v", err)
			return
		}
		a.publishPatterns()

	case core.CmdDeletePattern:
		name := payloadString(cmd.Payload, "name")
		if err := a.luaEngine.DeletePattern(name); err != nil {
			a.log.Warnf("Error deleting pattern '%s': %v", name, err)
			return
		}
		a.publishPatterns()

	default:
		a.log.Warnf("Unknown command type: %s", cmd.Type)
	}
}

// applyPatch stores and sends the merged record. A failed send has already been
// reported through the manager's error handler.
func (a *Agent) applyPatch(patch protocol.Patch, debounced bool) {
	rec, err := a.model.ApplyPartial(patch, debounced)
	if err != nil {
		a.log.Debugf("Send failed: %v", err)
	}
	a.eventBus.Publish(core.Event{Type: core.SettingsChangedEvent, Payload: rec})
}

// setLoop turns loop mode on or off. Asking for on while it is already on moves to the
// next look immediately.
func (a *Agent) setLoop(on bool) {
	changed, err := a.scheduler.SetLoop(on, a.loopInterval)
	if err != nil {
		a.log.Errorf("Loop: %v", err)
		return
	}
	if on && !changed {
		a.loopStep()
		return
	}
	a.state.SetLoop(on)
	a.eventBus.Publish(core.Event{Type: core.LoopChangedEvent, Payload: map[string]bool{"on": on}})
}

func (a *Agent) loopStep() {
	a.applyPatch(presets.RandomLoopPatch(a.rng), false)
}

func (a *Agent) publishSchedules() {
	a.eventBus.Publish(core.Event{Type: core.SchedulesChangedEvent, Payload: a.scheduler.GetAll()})
}

func (a *Agent) publishPatterns() {
	patterns, err := a.luaEngine.GetPatternList()
	if err != nil {
		a.log.Warnf("Error listing patterns: %v", err)
		return
	}
	a.eventBus.Publish(core.Event{Type: core.PatternsChangedEvent, Payload: patterns})
}

func payloadString(p map[string]interface{}, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadBool(p map[string]interface{}, key string) bool {
	b, _ := p[key].(bool)
	return b
}

func payloadFloat(p map[string]interface{}, key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// payloadPatch accepts a typed patch from in-process producers or decoded JSON.
func payloadPatch(p map[string]interface{}) (protocol.Patch, error) {
	switch v := p["patch"].(type) {
	case protocol.Patch:
		return v, nil
	case map[string]interface{}:
		return protocol.ParsePatch(v)
	}
	return nil, fmt.Errorf("missing patch")
}

// payloadID reads a schedule ID sent either as a JSON number or a string.
func payloadID(p map[string]interface{}) (int, error) {
	switch v := p["id"].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	}
	return 0, fmt.Errorf("missing schedule id")
}
