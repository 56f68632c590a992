package lua

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/protocol"
)

// effectStep is the cadence of the built-in effects. Most intermediate frames are
// dropped by the debouncer; only the final frame of each effect is committed.
const effectStep = 50 * time.Millisecond

// scriptEnv binds Go functions to one running script.
type scriptEnv struct {
	e   *Engine
	ctx context.Context
}

// registerGoFunctions exposes Go functions to the given Lua state.
func (e *Engine) registerGoFunctions(L *lua.LState, ctx context.Context) {
	env := &scriptEnv{e: e, ctx: ctx}

	L.SetGlobal("set", L.NewFunction(env.luaSet))
	L.SetGlobal("mode", L.NewFunction(env.luaMode))
	L.SetGlobal("color_mode", L.NewFunction(env.luaColorMode))
	L.SetGlobal("hue", L.NewFunction(env.hueFunc(protocol.FieldHue)))
	L.SetGlobal("hue2", L.NewFunction(env.hueFunc(protocol.FieldHue2)))
	L.SetGlobal("brightness", L.NewFunction(env.luaBrightness))
	L.SetGlobal("preset", L.NewFunction(env.luaPreset))
	L.SetGlobal("send", L.NewFunction(env.luaSend))
	L.SetGlobal("print", L.NewFunction(env.luaPrint))
	L.SetGlobal("sleep", L.NewFunction(env.luaSleep))
	L.SetGlobal("should_stop", L.NewFunction(env.luaShouldStop))

	L.SetGlobal("breathe", L.NewFunction(env.luaBreathe))
	L.SetGlobal("hue_sweep", L.NewFunction(env.luaHueSweep))
	L.SetGlobal("mode_cycle", L.NewFunction(env.luaModeCycle))
}

// push hands a command to the agent. It gives up when the script is cancelled.
func (env *scriptEnv) push(cmd core.Command) bool {
	select {
	case env.e.commands <- cmd:
		return true
	case <-env.ctx.Done():
		return false
	}
}

func (env *scriptEnv) pushPatch(p protocol.Patch, debounced bool) bool {
	return env.push(core.Command{
		Type:    core.CmdApplyPatch,
		Payload: map[string]interface{}{"patch": p, "debounced": debounced},
	})
}

// sleep waits for d and reports false if the script was cancelled meanwhile.
func (env *scriptEnv) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-env.ctx.Done():
		return false
	}
}

// set{bpm=120, ledMode="Wave"} [, debounced]
func (env *scriptEnv) luaSet(L *lua.LState) int {
	tbl := L.CheckTable(1)
	raw := make(map[string]interface{})
	tbl.ForEach(func(k, v lua.LValue) {
		switch tv := v.(type) {
		case lua.LNumber:
			raw[k.String()] = float64(tv)
		case lua.LBool:
			raw[k.String()] = bool(tv)
		default:
			raw[k.String()] = v.String()
		}
	})
	p, err := protocol.ParsePatch(raw)
	if err != nil {
		L.RaiseError("set: %v", err)
		return 0
	}
	env.pushPatch(p, L.OptBool(2, false))
	return 0
}

func (env *scriptEnv) luaMode(L *lua.LState) int {
	name := L.CheckString(1)
	if _, err := protocol.ParseLedMode(name); err != nil {
		L.RaiseError("mode: %v", err)
		return 0
	}
	env.push(core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": name}})
	return 0
}

func (env *scriptEnv) luaColorMode(L *lua.LState) int {
	m, err := protocol.ParseColorMode(L.CheckString(1))
	if err != nil {
		L.RaiseError("color_mode: %v", err)
		return 0
	}
	env.pushPatch(protocol.Patch{protocol.FieldColorMode: int(m)}, false)
	return 0
}

// hue(degrees [, debounced])
func (env *scriptEnv) hueFunc(field protocol.Field) lua.LGFunction {
	return func(L *lua.LState) int {
		env.push(core.Command{Type: core.CmdSetHue, Payload: map[string]interface{}{
			"field":     string(field),
			"degrees":   float64(L.CheckNumber(1)),
			"debounced": L.OptBool(2, false),
		}})
		return 0
	}
}

func (env *scriptEnv) luaBrightness(L *lua.LState) int {
	env.pushPatch(protocol.Patch{protocol.FieldBrightness: L.CheckInt(1)}, L.OptBool(2, false))
	return 0
}

func (env *scriptEnv) luaPreset(L *lua.LState) int {
	env.push(core.Command{Type: core.CmdApplyPreset, Payload: map[string]interface{}{"name": L.CheckString(1)}})
	return 0
}

func (env *scriptEnv) luaSend(L *lua.LState) int {
	env.push(core.Command{Type: core.CmdSendNow})
	return 0
}

func (env *scriptEnv) luaPrint(L *lua.LState) int {
	env.e.log.Infof("[script] %s", L.ToString(1))
	return 0
}

func (env *scriptEnv) luaSleep(L *lua.LState) int {
	env.sleep(time.Duration(L.CheckInt(1)) * time.Millisecond)
	return 0
}

func (env *scriptEnv) luaShouldStop(L *lua.LState) int {
	L.Push(lua.LBool(env.ctx.Err() != nil))
	return 1
}

// breathe(duration_ms, min, max) ramps brightness up from min to max and back.
func (env *scriptEnv) luaBreathe(L *lua.LState) int {
	duration := time.Duration(L.CheckInt(1)) * time.Millisecond
	lo := protocol.Clamp8Int(L.OptInt(2, 1))
	hi := protocol.Clamp8Int(L.OptInt(3, 255))
	if hi < lo {
		lo, hi = hi, lo
	}

	steps := int(duration / (2 * effectStep))
	if steps < 1 {
		steps = 1
	}
	span := float64(hi - lo)

	for i := 0; i <= steps; i++ {
		v := lo + int(span*float64(i)/float64(steps))
		if !env.pushPatch(protocol.Patch{protocol.FieldBrightness: v}, true) || !env.sleep(effectStep) {
			return 0
		}
	}
	for i := steps; i >= 0; i-- {
		v := lo + int(span*float64(i)/float64(steps))
		if !env.pushPatch(protocol.Patch{protocol.FieldBrightness: v}, i != 0) {
			return 0
		}
		if i != 0 && !env.sleep(effectStep) {
			return 0
		}
	}
	return 0
}

// hue_sweep(from_deg, to_deg, duration_ms) moves the primary hue linearly.
func (env *scriptEnv) luaHueSweep(L *lua.LState) int {
	from := float64(L.CheckNumber(1))
	to := float64(L.CheckNumber(2))
	duration := time.Duration(L.CheckInt(3)) * time.Millisecond

	steps := int(duration / effectStep)
	if steps < 1 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		deg := from + (to-from)*float64(i)/float64(steps)
		final := i == steps
		ok := env.push(core.Command{Type: core.CmdSetHue, Payload: map[string]interface{}{
			"field":     string(protocol.FieldHue),
			"degrees":   deg,
			"debounced": !final,
		}})
		if !ok || (!final && !env.sleep(effectStep)) {
			return 0
		}
	}
	return 0
}

// mode_cycle(dwell_ms) shows every LED mode in turn.
func (env *scriptEnv) luaModeCycle(L *lua.LState) int {
	dwell := time.Duration(L.CheckInt(1)) * time.Millisecond
	for _, m := range protocol.LedModes() {
		ok := env.push(core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": m.String()}})
		if !ok || !env.sleep(dwell) {
			return 0
		}
	}
	return 0
}
