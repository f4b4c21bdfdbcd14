// Package script turns free-form dialogue text into speaker-attributed turns.
package script

import (
	"strings"
)

// Speaker identifies who delivers a turn.
type Speaker int

const (
	Unknown Speaker = iota
	Host
	Guest
)

// String returns the label used in rendered scripts.
func (s Speaker) String() string {
	switch s {
	case Host:
		return "Host"
	case Guest:
		return "Guest"
	default:
		return "Unknown"
	}
}

// ParseSpeaker maps a label to a Speaker, ignoring case and surrounding
// whitespace. Anything other than host or guest is Unknown.
func ParseSpeaker(label string) Speaker {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "host":
		return Host
	case "guest":
		return Guest
	default:
		return Unknown
	}
}

// Turn is one contiguous block of dialogue spoken by a single speaker.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Render serializes turns in the canonical "<Speaker>: <text>" form, one turn
// per line group. Segment(Render(turns)) reproduces turns for any output of
// Segment.
func Render(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Speaker.String())
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}
