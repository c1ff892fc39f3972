package segment

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newAdaptive(t *testing.T) *Adaptive {
	t.Helper()
	a, err := NewAdaptive(16000, DefaultSilenceThreshold, &Sequencer{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAdaptive failed: %v", err)
	}
	return a
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func TestAdaptiveTransitions(t *testing.T) {
	a := newAdaptive(t)

	if a.State() != Idle {
		t.Fatalf("expected idle, got %v", a.State())
	}

	// Silence while idle keeps nothing
	if seg := a.Push(chunk(0), false, at(0)); seg != nil {
		t.Fatal("unexpected segment while idle")
	}
	if a.State() != Idle || a.Pending() != 0 {
		t.Fatalf("expected idle with nothing pending, got %v/%d", a.State(), a.Pending())
	}

	a.Push(chunk(1), true, at(64))
	if a.State() != Recording || a.Pending() != 1 {
		t.Fatalf("expected recording with 1 chunk, got %v/%d", a.State(), a.Pending())
	}

	a.Push(chunk(2), true, at(128))
	if a.Pending() != 2 {
		t.Fatalf("expected 2 chunks, got %d", a.Pending())
	}

	// First silent chunk starts the timer and is not appended
	a.Push(chunk(3), false, at(192))
	if a.State() != TrailingSilence || a.Pending() != 2 {
		t.Fatalf("expected trailing silence with 2 chunks, got %v/%d", a.State(), a.Pending())
	}

	// Speech resumes: back to recording, chunk kept
	a.Push(chunk(4), true, at(256))
	if a.State() != Recording || a.Pending() != 3 {
		t.Fatalf("expected recording with 3 chunks, got %v/%d", a.State(), a.Pending())
	}
}

func TestAdaptiveThresholdIsStrict(t *testing.T) {
	a := newAdaptive(t)

	a.Push(chunk(1), true, at(0))
	a.Push(chunk(2), false, at(100)) // timer starts at 100ms

	if seg := a.Push(chunk(3), false, at(400)); seg != nil {
		t.Fatal("segment finalized before the threshold elapsed")
	}
	if seg := a.Push(chunk(4), false, at(600)); seg != nil {
		t.Fatal("segment finalized at exactly the threshold")
	}

	seg := a.Push(chunk(5), false, at(601))
	if seg == nil {
		t.Fatal("expected segment once the threshold was exceeded")
	}
	if len(seg.Chunks) != 1 || seg.Chunks[0].Samples[0] != 1 {
		t.Errorf("expected only the speech chunk, got %+v", seg.Chunks)
	}
	if seg.Policy != PolicyAdaptive {
		t.Errorf("expected policy %q, got %q", PolicyAdaptive, seg.Policy)
	}
	if a.State() != Idle || a.Pending() != 0 {
		t.Errorf("expected idle with empty buffer, got %v/%d", a.State(), a.Pending())
	}
}

func TestAdaptiveSpeechResetsSilenceTimer(t *testing.T) {
	a := newAdaptive(t)

	a.Push(chunk(1), true, at(0))
	a.Push(chunk(0), false, at(100))
	a.Push(chunk(2), true, at(400))
	a.Push(chunk(0), false, at(700)) // timer restarts here

	if seg := a.Push(chunk(0), false, at(1000)); seg != nil {
		t.Fatal("timer was not reset by speech")
	}
	if seg := a.Push(chunk(0), false, at(1201)); seg == nil {
		t.Fatal("expected segment 501ms after silence restarted")
	}
}

func TestAdaptiveSequenceNumbers(t *testing.T) {
	a := newAdaptive(t)

	ms := 0
	for i := 0; i < 3; i++ {
		a.Push(chunk(int16(i)), true, at(ms))
		a.Push(chunk(0), false, at(ms+10))
		seg := a.Push(chunk(0), false, at(ms+600))
		if seg == nil {
			t.Fatalf("utterance %d: expected segment", i)
		}
		if seg.Seq != uint64(i) {
			t.Errorf("utterance %d: expected seq %d, got %d", i, i, seg.Seq)
		}
		ms += 1000
	}
}

func TestAdaptiveNeverEmitsEmptySegment(t *testing.T) {
	a := newAdaptive(t)

	for i := 0; i < 100; i++ {
		if seg := a.Push(chunk(0), false, at(i*64)); seg != nil {
			t.Fatalf("emitted a segment without speech at iteration %d", i)
		}
	}

	// After a finalize, silence alone must not produce another segment
	a.Push(chunk(1), true, at(10000))
	a.Push(chunk(0), false, at(10064))
	if seg := a.Push(chunk(0), false, at(10600)); seg == nil {
		t.Fatal("expected a segment")
	}
	for i := 0; i < 100; i++ {
		if seg := a.Push(chunk(0), false, at(11000+i*64)); seg != nil {
			t.Fatalf("emitted an empty segment after finalize at iteration %d", i)
		}
	}
}

func TestAdaptiveFlushDiscards(t *testing.T) {
	a := newAdaptive(t)

	a.Push(chunk(1), true, at(0))
	a.Push(chunk(2), true, at(64))

	if seg := a.Flush(); seg != nil {
		t.Fatal("adaptive flush must not emit an incomplete utterance")
	}
	if a.Pending() != 0 || a.State() != Idle {
		t.Errorf("expected reset after flush, got %v/%d", a.State(), a.Pending())
	}
}

func TestNewAdaptiveValidation(t *testing.T) {
	if _, err := NewAdaptive(16000, 0, &Sequencer{}, zerolog.Nop()); err == nil {
		t.Error("expected error for zero threshold")
	}
	if _, err := NewAdaptive(0, time.Second, &Sequencer{}, zerolog.Nop()); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
