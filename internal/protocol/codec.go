package protocol

import (
	"strconv"
	"strings"
)

// SwatchWidth is the length of one "#RRGGBB" token.
const SwatchWidth = 7

// MessageKind tells the two inbound frame shapes apart.
type MessageKind int

const (
	KindEcho MessageKind = iota
	KindSwatches
)

func (k MessageKind) String() string {
	if k == KindSwatches {
		return "swatches"
	}
	return "echo"
}

// Echo is a decoded settings echo. Values only holds the positions that were present
// and parsed.
type Echo struct {
	Values  Patch
	Missing []Field
	Extra   int
}

// Complete reports whether every schema field was supplied.
func (e Echo) Complete() bool {
	return len(e.Missing) == 0
}

// Message is one classified inbound frame.
type Message struct {
	Kind     MessageKind
	Swatches []string
	Echo     Echo
}

// Codec translates between Settings and wire text for one schema.
type Codec struct {
	schema Schema
}

// NewCodec returns a codec for schema.
func NewCodec(schema Schema) *Codec {
	return &Codec{schema: schema}
}

// Schema returns the schema the codec encodes with.
func (c *Codec) Schema() Schema {
	return c.schema
}

// Encode renders s as a comma-separated list of clamped values in schema order.
func (c *Codec) Encode(s Settings) string {
	var b strings.Builder
	for i, f := range c.schema.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(Clamp8Int(s.Value(f))))
	}
	return b.String()
}

// Decode classifies text and decodes it accordingly.
func (c *Codec) Decode(text string) Message {
	if Classify(text) == KindSwatches {
		return Message{Kind: KindSwatches, Swatches: ParseSwatches(text)}
	}
	return Message{Kind: KindEcho, Echo: c.DecodeEcho(text)}
}

// DecodeEcho maps comma-separated integers positionally onto the schema. Short frames
// leave trailing fields missing; unparsable tokens are missing too.
func (c *Codec) DecodeEcho(text string) Echo {
	tokens := strings.Split(text, ",")
	e := Echo{Values: make(Patch, len(c.schema.Fields))}
	for i, f := range c.schema.Fields {
		if i >= len(tokens) {
			e.Missing = append(e.Missing, f)
			continue
		}
		v, ok := parseLeadingInt(tokens[i])
		if !ok {
			e.Missing = append(e.Missing, f)
			continue
		}
		e.Values[f] = Clamp8Int(v)
	}
	if len(tokens) > len(c.schema.Fields) {
		e.Extra = len(tokens) - len(c.schema.Fields)
	}
	return e
}

// Classify treats any frame containing '#' as a swatch stream.
func Classify(text string) MessageKind {
	if strings.Contains(text, "#") {
		return KindSwatches
	}
	return KindEcho
}

// ParseSwatches splits text into consecutive SwatchWidth chunks. A trailing partial
// chunk is incomplete and dropped.
func ParseSwatches(text string) []string {
	out := make([]string, 0, len(text)/SwatchWidth)
	for i := 0; i+SwatchWidth <= len(text); i += SwatchWidth {
		out = append(out, text[i:i+SwatchWidth])
	}
	return out
}

// parseLeadingInt reads an optional sign and the leading run of digits, ignoring
// surrounding whitespace and any trailing garbage. Values saturate well outside the
// 8-bit range so clamping still yields the right boundary.
func parseLeadingInt(tok string) (int, bool) {
	s := strings.TrimSpace(tok)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, digits := 0, 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		digits++
		if n < 1<<20 {
			n = n*10 + int(r-'0')
		}
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
