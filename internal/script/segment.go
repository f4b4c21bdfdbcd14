package script

import (
	"strings"
)

type segmentState int

const (
	noSpeakerOpen segmentState = iota
	speakerOpen
)

// segmenter is the line scanner behind Segment. It is either waiting for the
// first label or accumulating lines for the currently open speaker.
type segmenter struct {
	state   segmentState
	speaker Speaker
	lines   []string
	turns   []Turn
}

// Segment splits text into ordered turns. A line opens a new turn when it
// starts with "Host:" or "Guest:" (case-insensitive); following unlabeled
// lines belong to the open turn. Lines before the first label and blank lines
// are ignored, and turns without content are dropped. Text without any label
// yields an empty result.
func Segment(text string) []Turn {
	s := &segmenter{}
	for _, line := range strings.Split(text, "\n") {
		s.feed(strings.TrimRight(line, "\r"))
	}
	s.close()
	return s.turns
}

func (s *segmenter) feed(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	if speaker, rest, ok := matchLabel(line); ok {
		s.close()
		s.state = speakerOpen
		s.speaker = speaker
		s.lines = s.lines[:0]
		if rest = strings.TrimSpace(rest); rest != "" {
			s.lines = append(s.lines, rest)
		}
		return
	}

	switch s.state {
	case noSpeakerOpen:
		// preamble before the first label
	case speakerOpen:
		s.lines = append(s.lines, line)
	}
}

// close emits the open speaker, if any, and returns to noSpeakerOpen.
func (s *segmenter) close() {
	if s.state != speakerOpen {
		return
	}
	if text := strings.TrimSpace(strings.Join(s.lines, "\n")); text != "" {
		s.turns = append(s.turns, Turn{Speaker: s.speaker, Text: text})
	}
	s.state = noSpeakerOpen
	s.lines = s.lines[:0]
}

var labels = []struct {
	token   string
	speaker Speaker
}{
	{"host", Host},
	{"guest", Guest},
}

// matchLabel reports whether line begins with a speaker token immediately
// followed by a colon, returning the text after the colon.
func matchLabel(line string) (Speaker, string, bool) {
	for _, l := range labels {
		n := len(l.token)
		if len(line) <= n || line[n] != ':' {
			continue
		}
		if strings.EqualFold(line[:n], l.token) {
			return l.speaker, line[n+1:], true
		}
	}
	return Unknown, "", false
}
