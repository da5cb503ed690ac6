package command

import (
	"fmt"
	"regexp"
)

// Move is a motion payload. Distance-based moves carry a target distance with
// zero duration; continuous moves carry a long duration with zero distance.
type Move struct {
	Speed    float64 `json:"speed"`
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
}

// Payload is the command body published for a matched phrase. Exactly one of
// Move or Terminate is set.
type Payload struct {
	Move      *Move `json:"move,omitempty"`
	Terminate int   `json:"terminate,omitempty"`
}

// Message is the wire envelope broadcast on the control channel
type Message struct {
	Handheld Payload `json:"handheld"`
}

// Entry pairs a spoken phrase with its payload template
type Entry struct {
	Phrase  string
	Payload Payload

	pattern *regexp.Regexp
}

// continuousMotionLimit separates continuous-motion commands (indices below)
// from one-shot stop/terminate commands (indices at or above), which are
// never repeat-suppressed.
const continuousMotionLimit = 6

// continuousDuration keeps a continuous move running until replaced
const continuousDuration = 7200.0

// Vocabulary is the fixed ordered phrase list. Order matters: the transcript
// scan keeps the last matching entry, so later entries win on collision.
type Vocabulary struct {
	entries []Entry
}

// Default returns the robot control vocabulary
func Default() *Vocabulary {
	entries := []Entry{
		{Phrase: "go short", Payload: Payload{Move: &Move{Speed: 1.0, Duration: 0.0, Distance: 0.5}}},
		{Phrase: "go medium", Payload: Payload{Move: &Move{Speed: 1.0, Duration: 0.0, Distance: 1.5}}},
		{Phrase: "go long", Payload: Payload{Move: &Move{Speed: 1.0, Duration: 0.0, Distance: 2.5}}},
		{Phrase: "go slow", Payload: Payload{Move: &Move{Speed: 0.6, Duration: continuousDuration, Distance: 0.0}}},
		{Phrase: "go fast", Payload: Payload{Move: &Move{Speed: 1.0, Duration: continuousDuration, Distance: 0.0}}},
		{Phrase: "go run", Payload: Payload{Move: &Move{Speed: 1.1, Duration: continuousDuration, Distance: 0.0}}},
		{Phrase: "go manual", Payload: Payload{Terminate: 1}},
		{Phrase: "go stop", Payload: Payload{Move: &Move{}}},
		{Phrase: "go auto", Payload: Payload{Move: &Move{}}},
		{Phrase: "stop", Payload: Payload{Move: &Move{}}},
		{Phrase: "halt", Payload: Payload{Move: &Move{}}},
	}

	for i := range entries {
		entries[i].pattern = regexp.MustCompile(`(?i)\b(` + regexp.QuoteMeta(entries[i].Phrase) + `)\b`)
	}

	return &Vocabulary{entries: entries}
}

// Len returns the number of vocabulary entries
func (v *Vocabulary) Len() int {
	return len(v.entries)
}

// Entry returns the vocabulary entry at index i
func (v *Vocabulary) Entry(i int) (Entry, error) {
	if i < 0 || i >= len(v.entries) {
		return Entry{}, fmt.Errorf("vocabulary index %d out of range", i)
	}
	return v.entries[i], nil
}

// Phrases returns the phrase list in order, for use as recognition hints
func (v *Vocabulary) Phrases() []string {
	phrases := make([]string, len(v.entries))
	for i, e := range v.entries {
		phrases[i] = e.Phrase
	}
	return phrases
}

// Match scans the whole vocabulary against the transcript and returns the
// index of the last entry whose phrase appears as a whole word. The scan
// never short-circuits: on a transcript matching several phrases, the latest
// entry in list order wins.
func (v *Vocabulary) Match(transcript string) (int, bool) {
	matched := -1
	for i, entry := range v.entries {
		if entry.pattern.MatchString(transcript) {
			matched = i
		}
	}
	return matched, matched >= 0
}

// IsContinuousMotion reports whether the entry at index i belongs to the
// continuous-motion class subject to repeat suppression.
func IsContinuousMotion(i int) bool {
	return i < continuousMotionLimit
}
