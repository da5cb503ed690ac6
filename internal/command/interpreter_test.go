package command

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Anantak/chip-voice-relay/internal/recognizer"
)

// capturePublisher records every published message
type capturePublisher struct {
	messages []Message
	fail     bool
}

func (p *capturePublisher) Publish(msg Message) error {
	if p.fail {
		return fmt.Errorf("publish failed")
	}
	p.messages = append(p.messages, msg)
	return nil
}

// fakeClock drives the interpreter's repeat suppression window
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestInterpreter() (*Interpreter, *capturePublisher, *fakeClock) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pub := &capturePublisher{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	in := NewInterpreter(Default(), pub, logger, nil)
	in.now = clock.now

	return in, pub, clock
}

func final(text string) recognizer.Result {
	return recognizer.Result{Transcript: text, IsFinal: true}
}

func TestUnstableInterimsEmitNothing(t *testing.T) {
	in, pub, _ := newTestInterpreter()

	events := []recognizer.Result{
		{Transcript: "go", Stability: 0.0},
		{Transcript: "go fa", Stability: 0.0},
		{Transcript: "go fast", Stability: 0.0},
	}

	for _, ev := range events {
		if quit := in.Handle(ev); quit {
			t.Fatal("Unexpected quit from interim event")
		}
	}

	if len(pub.messages) != 0 {
		t.Errorf("Expected zero commands from unstable interims, got %d", len(pub.messages))
	}

	if in.GetStats().EventsAccepted != 0 {
		t.Errorf("Expected zero accepted events, got %d", in.GetStats().EventsAccepted)
	}
}

func TestStableInterimAccepted(t *testing.T) {
	in, pub, _ := newTestInterpreter()

	in.Handle(recognizer.Result{Transcript: "go fast", Stability: 0.85})

	if len(pub.messages) != 1 {
		t.Fatalf("Expected 1 command from stable interim, got %d", len(pub.messages))
	}
}

func TestGoFastEmitsExpectedMessage(t *testing.T) {
	in, pub, _ := newTestInterpreter()

	in.Handle(final("go fast"))

	if len(pub.messages) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(pub.messages))
	}

	data, err := json.Marshal(pub.messages[0])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"handheld":{"move":{"speed":1,"duration":7200,"distance":0}}}`
	if string(data) != want {
		t.Errorf("Published %s, want %s", data, want)
	}
}

func TestQuitPhraseRequestsShutdown(t *testing.T) {
	in, pub, _ := newTestInterpreter()

	tests := []string{"please exit now", "quit", "QUIT the program", "Exit"}
	for _, text := range tests {
		if quit := in.Handle(final(text)); !quit {
			t.Errorf("Expected quit for %q", text)
		}
	}

	if len(pub.messages) != 0 {
		t.Errorf("Expected no command messages on quit, got %d", len(pub.messages))
	}
}

func TestQuitRequiresWholeWord(t *testing.T) {
	in, _, _ := newTestInterpreter()

	if quit := in.Handle(final("exiting the building")); quit {
		t.Error("Expected no quit for partial word 'exiting'")
	}
	if quit := in.Handle(final("mosquito")); quit {
		t.Error("Expected no quit for partial word 'mosquito'")
	}
}

func TestRepeatSuppressionWithinWindow(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	in.Handle(final("go slow"))
	clock.advance(time.Second)
	in.Handle(final("go slow"))

	if len(pub.messages) != 1 {
		t.Fatalf("Expected second 'go slow' suppressed, got %d messages", len(pub.messages))
	}

	if in.GetStats().Suppressed != 1 {
		t.Errorf("Expected 1 suppression recorded, got %d", in.GetStats().Suppressed)
	}
}

func TestRepeatAllowedAfterWindow(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	in.Handle(final("go slow"))
	clock.advance(2 * time.Second)
	in.Handle(final("go slow"))

	if len(pub.messages) != 2 {
		t.Errorf("Expected repeat emitted at exactly 2s, got %d messages", len(pub.messages))
	}
}

func TestStopCommandsNeverSuppressed(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	// Rapid-fire identical stop/terminate commands all pass.
	for i := 0; i < 3; i++ {
		in.Handle(final("halt"))
		clock.advance(100 * time.Millisecond)
	}

	if len(pub.messages) != 3 {
		t.Errorf("Expected all 3 'halt' commands emitted, got %d", len(pub.messages))
	}
}

func TestDistinctCommandInterruptsImmediately(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	in.Handle(final("go slow"))
	clock.advance(500 * time.Millisecond)
	in.Handle(final("halt"))

	if len(pub.messages) != 2 {
		t.Fatalf("Expected both commands emitted, got %d", len(pub.messages))
	}

	if pub.messages[1].Handheld.Move == nil || pub.messages[1].Handheld.Move.Speed != 0 {
		t.Error("Expected second message to be the halt zero-move")
	}
}

func TestDistinctContinuousCommandInterrupts(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	in.Handle(final("go slow"))
	clock.advance(500 * time.Millisecond)
	in.Handle(final("go fast"))

	if len(pub.messages) != 2 {
		t.Errorf("Expected different continuous command to pass, got %d messages", len(pub.messages))
	}
}

func TestSuppressionStatePersistsAcrossNonMatches(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	in.Handle(final("go slow"))
	clock.advance(time.Second)
	in.Handle(final("nothing relevant"))
	in.Handle(final("go slow"))

	if len(pub.messages) != 1 {
		t.Errorf("Expected repeat still suppressed after unrelated transcript, got %d messages", len(pub.messages))
	}
}

func TestFailedPublishDoesNotUpdateState(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	pub.fail = true
	in.Handle(final("go slow"))

	pub.fail = false
	clock.advance(time.Second)
	in.Handle(final("go slow"))

	// The first emission never went out, so the second is not a repeat.
	if len(pub.messages) != 1 {
		t.Errorf("Expected command emitted after earlier publish failure, got %d messages", len(pub.messages))
	}
}

func TestNoMatchNoEmission(t *testing.T) {
	in, pub, _ := newTestInterpreter()

	in.Handle(final("the weather is nice"))

	if len(pub.messages) != 0 {
		t.Errorf("Expected no command for unmatched transcript, got %d", len(pub.messages))
	}
}

func TestGoStopResolvesToLastMatch(t *testing.T) {
	in, pub, clock := newTestInterpreter()

	// "go stop" matches both "go stop" (7) and "stop" (9); the last entry
	// wins, which lands in the never-suppressed class.
	in.Handle(final("go stop"))
	clock.advance(100 * time.Millisecond)
	in.Handle(final("go stop"))

	if len(pub.messages) != 2 {
		t.Errorf("Expected 'go stop' to resolve to the stop class and never suppress, got %d messages", len(pub.messages))
	}
}
