// Package presets holds the static tables the UI offers: named presets, palettes and
// per-mode help text.
package presets

import (
	"fmt"
	"math/rand"
	"strings"

	"ledstrip-remote/internal/protocol"
)

// Preset is a named partial record.
type Preset struct {
	Name  string         `json:"name"`
	Patch protocol.Patch `json:"patch"`
}

// Drop reports whether the preset is one of the "drop" effects the UI highlights.
func (p Preset) Drop() bool {
	return strings.Contains(strings.ToLower(p.Name), "drop")
}

var presets = []Preset{
	{"Drop Flash", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedFlash), protocol.FieldModeOption: 2, protocol.FieldIntensity: 4,
	}},
	{"Cyan Drop", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedFlash), protocol.FieldModeOption: 2, protocol.FieldIntensity: 4,
		protocol.FieldColorMode: int(protocol.ColorSingle), protocol.FieldHue: 128,
	}},
	{"Red Drop", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedFlash), protocol.FieldModeOption: 2, protocol.FieldIntensity: 4,
		protocol.FieldColorMode: int(protocol.ColorSingle), protocol.FieldHue: 0,
	}},
	{"Red Cyan Drop", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedFlash), protocol.FieldModeOption: 2, protocol.FieldIntensity: 4,
		protocol.FieldColorMode: int(protocol.ColorDuo), protocol.FieldHue: 0, protocol.FieldHue2: 128,
	}},
	{"Drop Wave", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedWave), protocol.FieldModeOption: 5, protocol.FieldIntensity: 4,
	}},
	{"Red Green Strobe", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedStrobe), protocol.FieldModeOption: 0, protocol.FieldIntensity: 0,
	}},
	{"Strobe Drop", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedStrobe), protocol.FieldModeOption: 0, protocol.FieldIntensity: 2,
	}},
	{"Strobe Drop Hard", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedStrobe), protocol.FieldModeOption: 0, protocol.FieldIntensity: 3,
	}},
	{"Duo Wave", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedWave), protocol.FieldModeOption: 5, protocol.FieldIntensity: 1,
		protocol.FieldColorMode: int(protocol.ColorDuo),
	}},
	{"Red Blue Saw", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedWave), protocol.FieldModeOption: 4, protocol.FieldIntensity: 1,
		protocol.FieldColorMode: int(protocol.ColorDuo), protocol.FieldHue: 0, protocol.FieldHue2: 166,
	}},
	{"Red Blue Calm Wave", protocol.Patch{
		protocol.FieldLedMode: int(protocol.LedWave), protocol.FieldModeOption: 1, protocol.FieldIntensity: 0,
		protocol.FieldColorMode: int(protocol.ColorPalette), protocol.FieldPaletteIndex: 0,
	}},
}

// All returns every preset in display order.
func All() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Lookup finds a preset by name, case-insensitively.
func Lookup(name string) (Preset, error) {
	for _, p := range presets {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown preset %q", name)
}

// Palettes lists the device's built-in palettes by index.
var Palettes = []string{"Sunset", "Sunconure", "PurpleRed", "PurpleCyan", "Blues"}

// PaletteIndex resolves a palette name to its index.
func PaletteIndex(name string) (int, error) {
	for i, p := range Palettes {
		if strings.EqualFold(p, strings.TrimSpace(name)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown palette %q", name)
}

// ModePatch selects an LED mode. The option's meaning changes with the mode, so it
// is reset.
func ModePatch(m protocol.LedMode) protocol.Patch {
	return protocol.Patch{protocol.FieldLedMode: int(m), protocol.FieldModeOption: 0}
}

// ModeHelp describes what modeOption does for m.
func ModeHelp(m protocol.LedMode) []string {
	switch m {
	case protocol.LedRain:
		return []string{"0-2 forward, 3-4 backwards, between 5 and 16 for longer wait, more is random"}
	case protocol.LedStrobe:
		return []string{"0 for fixed pattern, 1 for random, 2 for forward, 3 for backwards"}
	case protocol.LedCylon:
		return []string{"ModeOption determines the 'width' of the eye"}
	case protocol.LedSparkle:
		return []string{"0 for one at a time, 1 for fill to whole"}
	case protocol.LedFlash:
		return []string{"determines the time the leds are on"}
	case protocol.LedWave:
		return []string{
			"0, 1 or 2 for sine wave. 3, 4 or 5 for sawtooth wave",
			"6, 7 or 8 for inverse sawtooth wave. 9 for triangle wave",
			"From 10 same but slower",
		}
	}
	return nil
}

// RandomLoopPatch picks the next random look for loop mode. Tempo and brightness are
// left alone.
func RandomLoopPatch(rng *rand.Rand) protocol.Patch {
	return protocol.Patch{
		protocol.FieldLedMode:      rng.Intn(len(protocol.LedModes())),
		protocol.FieldModeOption:   rng.Intn(6),
		protocol.FieldIntensity:    rng.Intn(2),
		protocol.FieldHue:          rng.Intn(256),
		protocol.FieldHue2:         rng.Intn(256),
		protocol.FieldColorMode:    rng.Intn(len(protocol.ColorModes())),
		protocol.FieldPaletteIndex: rng.Intn(len(Palettes)),
	}
}
