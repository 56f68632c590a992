// Package protocol implements the positional text wire format spoken by the LED strip
// controller: the settings record, its schema variants, the codec and the outbound
// debounce policy.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Field names a single position of the settings record.
type Field string

const (
	FieldLedMode        Field = "ledMode"
	FieldModeOption     Field = "modeOption"
	FieldBPM            Field = "bpm"
	FieldBrightness     Field = "brightness"
	FieldIntensity      Field = "intensity"
	FieldHue            Field = "h"
	FieldHue2           Field = "h2"
	FieldColorMode      Field = "colorMode"
	FieldPaletteIndex   Field = "paletteIndex"
	FieldSendLedsSocket Field = "sendLedsSocket"
)

// canonicalFields is the declaration order of the record. Schemas are prefixes or
// subsets of it.
var canonicalFields = []Field{
	FieldLedMode,
	FieldModeOption,
	FieldBPM,
	FieldBrightness,
	FieldIntensity,
	FieldHue,
	FieldHue2,
	FieldColorMode,
	FieldPaletteIndex,
	FieldSendLedsSocket,
}

// ErrUnknownField is returned when a patch or schema names a field the record does not have.
var ErrUnknownField = errors.New("unknown settings field")

// Fields returns all record fields in canonical order.
func Fields() []Field {
	out := make([]Field, len(canonicalFields))
	copy(out, canonicalFields)
	return out
}

// ParseField resolves a field name, case-insensitively.
func ParseField(name string) (Field, error) {
	for _, f := range canonicalFields {
		if strings.EqualFold(string(f), strings.TrimSpace(name)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

func fieldIndex(f Field) int {
	for i, c := range canonicalFields {
		if c == f {
			return i
		}
	}
	return -1
}

// LedMode is the active animation.
type LedMode int

const (
	LedRain LedMode = iota
	LedStrobe
	LedCylon
	LedSparkle
	LedFlash
	LedWave
)

var ledModeNames = [...]string{"Rain", "Strobe", "Cylon", "Sparkle", "Flash", "Wave"}

func (m LedMode) String() string {
	if m >= 0 && int(m) < len(ledModeNames) {
		return ledModeNames[m]
	}
	return fmt.Sprintf("LedMode(%d)", int(m))
}

// LedModes returns every LED mode in ordinal order.
func LedModes() []LedMode {
	out := make([]LedMode, len(ledModeNames))
	for i := range ledModeNames {
		out[i] = LedMode(i)
	}
	return out
}

// ParseLedMode resolves a mode by name, case-insensitively.
func ParseLedMode(name string) (LedMode, error) {
	for i, n := range ledModeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return LedMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown led mode %q", name)
}

// ColorMode is the color-selection strategy.
type ColorMode int

const (
	ColorSingle ColorMode = iota
	ColorComplement
	ColorRainbowFade
	ColorRainbowSplash
	ColorDuo
	ColorPalette
	ColorClose
)

var colorModeNames = [...]string{"Single", "Complement", "RainbowFade", "RainbowSplash", "Duo", "Palette", "Close"}

func (m ColorMode) String() string {
	if m >= 0 && int(m) < len(colorModeNames) {
		return colorModeNames[m]
	}
	return fmt.Sprintf("ColorMode(%d)", int(m))
}

// ColorModes returns every color mode in ordinal order.
func ColorModes() []ColorMode {
	out := make([]ColorMode, len(colorModeNames))
	for i := range colorModeNames {
		out[i] = ColorMode(i)
	}
	return out
}

// ParseColorMode resolves a color mode by name, case-insensitively.
func ParseColorMode(name string) (ColorMode, error) {
	for i, n := range colorModeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return ColorMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown color mode %q", name)
}

// UsesPrimaryHue reports whether the primary hue is shown for this color mode.
func (m ColorMode) UsesPrimaryHue() bool {
	switch m {
	case ColorSingle, ColorComplement, ColorClose, ColorDuo:
		return true
	}
	return false
}

// UsesSecondaryHue reports whether h2 is meaningful for this color mode.
func (m ColorMode) UsesSecondaryHue() bool {
	return m == ColorDuo
}

// Settings is the full device configuration. Values are plain ints so out-of-range
// input survives until Encode clamps it.
type Settings struct {
	LedMode        LedMode   `json:"ledMode"`
	ModeOption     int       `json:"modeOption"`
	BPM            int       `json:"bpm"`
	Brightness     int       `json:"brightness"`
	Intensity      int       `json:"intensity"`
	Hue            int       `json:"h"`
	Hue2           int       `json:"h2"`
	ColorMode      ColorMode `json:"colorMode"`
	PaletteIndex   int       `json:"paletteIndex"`
	SendLedsSocket int       `json:"sendLedsSocket"`
}

// DefaultSettings is the record the client starts with before any echo arrives.
func DefaultSettings() Settings {
	return Settings{
		LedMode:        LedWave,
		ModeOption:     11,
		BPM:            123,
		Brightness:     50,
		Intensity:      0,
		Hue:            0,
		Hue2:           128,
		ColorMode:      ColorPalette,
		PaletteIndex:   0,
		SendLedsSocket: 1,
	}
}

// Value returns the raw value of f. Unknown fields read as zero.
func (s Settings) Value(f Field) int {
	switch f {
	case FieldLedMode:
		return int(s.LedMode)
	case FieldModeOption:
		return s.ModeOption
	case FieldBPM:
		return s.BPM
	case FieldBrightness:
		return s.Brightness
	case FieldIntensity:
		return s.Intensity
	case FieldHue:
		return s.Hue
	case FieldHue2:
		return s.Hue2
	case FieldColorMode:
		return int(s.ColorMode)
	case FieldPaletteIndex:
		return s.PaletteIndex
	case FieldSendLedsSocket:
		return s.SendLedsSocket
	}
	return 0
}

// With returns a copy of s with f set to v.
func (s Settings) With(f Field, v int) Settings {
	switch f {
	case FieldLedMode:
		s.LedMode = LedMode(v)
	case FieldModeOption:
		s.ModeOption = v
	case FieldBPM:
		s.BPM = v
	case FieldBrightness:
		s.Brightness = v
	case FieldIntensity:
		s.Intensity = v
	case FieldHue:
		s.Hue = v
	case FieldHue2:
		s.Hue2 = v
	case FieldColorMode:
		s.ColorMode = ColorMode(v)
	case FieldPaletteIndex:
		s.PaletteIndex = v
	case FieldSendLedsSocket:
		s.SendLedsSocket = v
	}
	return s
}

// Merge returns a new record with every field of p applied over s.
func (s Settings) Merge(p Patch) Settings {
	for f, v := range p {
		s = s.With(f, v)
	}
	return s
}

// Validate checks the ranges the UI enforces. The wire format itself accepts 0..255
// for every field, so this is advisory.
func (s Settings) Validate() error {
	var problems []string
	if int(s.LedMode) < 0 || int(s.LedMode) >= len(ledModeNames) {
		problems = append(problems, fmt.Sprintf("ledMode %d out of range", s.LedMode))
	}
	if int(s.ColorMode) < 0 || int(s.ColorMode) >= len(colorModeNames) {
		problems = append(problems, fmt.Sprintf("colorMode %d out of range", s.ColorMode))
	}
	if s.BPM < 90 || s.BPM > 140 {
		problems = append(problems, fmt.Sprintf("bpm %d outside 90..140", s.BPM))
	}
	if s.Brightness < 1 || s.Brightness > 255 {
		problems = append(problems, fmt.Sprintf("brightness %d outside 1..255", s.Brightness))
	}
	if s.Intensity < 0 || s.Intensity > 8 {
		problems = append(problems, fmt.Sprintf("intensity %d outside 0..8", s.Intensity))
	}
	for _, f := range []Field{FieldModeOption, FieldHue, FieldHue2, FieldPaletteIndex, FieldSendLedsSocket} {
		if v := s.Value(f); v != Clamp8Int(v) {
			problems = append(problems, fmt.Sprintf("%s %d outside 0..255", f, v))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(problems, ", "))
	}
	return nil
}

// Patch is a partial record. Fields not present keep their current value on merge.
type Patch map[Field]int

// Merge returns a new patch with other applied over p.
func (p Patch) Merge(other Patch) Patch {
	out := make(Patch, len(p)+len(other))
	for f, v := range p {
		out[f] = v
	}
	for f, v := range other {
		out[f] = v
	}
	return out
}

// Fields returns the fields present in p in canonical order.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return fieldIndex(out[i]) < fieldIndex(out[j]) })
	return out
}

func (p Patch) String() string {
	parts := make([]string, 0, len(p))
	for _, f := range p.Fields() {
		parts = append(parts, fmt.Sprintf("%s=%d", f, p[f]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ParsePatch converts a decoded JSON object into a patch. Numbers, booleans and, for
// the two enum fields, mode names are accepted.
func ParsePatch(raw map[string]interface{}) (Patch, error) {
	p := make(Patch, len(raw))
	for name, value := range raw {
		f, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		v, err := patchValue(f, value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		p[f] = v
	}
	return p, nil
}

func patchValue(f Field, value interface{}) (int, error) {
	switch v := value.(type) {
	case float64:
		return int(math.Floor(v + 0.5)), nil
	case int:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		switch f {
		case FieldLedMode:
			m, err := ParseLedMode(v)
			return int(m), err
		case FieldColorMode:
			m, err := ParseColorMode(v)
			return int(m), err
		}
		n, ok := parseLeadingInt(v)
		if !ok {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported value type %T", value)
}

// Clamp8 rounds half up and clamps into the 8-bit unsigned range.
func Clamp8(v float64) int {
	r := math.Floor(v + 0.5)
	switch {
	case math.IsNaN(r), r < 0:
		return 0
	case r > 255:
		return 255
	}
	return int(r)
}

// Clamp8Int clamps v into [0,255].
func Clamp8Int(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// HueFromDegrees converts a color-wheel angle into device hue units. The device hue
// circle is slightly compressed, hence the 236 divisor.
func HueFromDegrees(deg float64) int {
	return Clamp8(256 * (255 * deg / 360) / 236)
}

// HueToDegrees converts device hue units back to an approximate color-wheel angle.
func HueToDegrees(h int) float64 {
	return float64(h) / 255 * 360
}
