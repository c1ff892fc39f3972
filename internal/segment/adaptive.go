package segment

import (
	"fmt"
	"time"

	"github.com/petems/doa-recorder/internal/audio"
	"github.com/rs/zerolog"
)

// DefaultSilenceThreshold is how long speech must be absent before a segment ends
const DefaultSilenceThreshold = 500 * time.Millisecond

// State of the adaptive policy
type State int

const (
	Idle State = iota
	Recording
	TrailingSilence
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case TrailingSilence:
		return "trailing_silence"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Adaptive records while the DSP reports speech and cuts the segment once
// speech has been absent for longer than the silence threshold.
//
// Chunks read during trailing silence are not kept, so the quiet tail of an
// utterance is dropped. Changing this alters what downstream transcription
// receives.
type Adaptive struct {
	threshold  time.Duration
	sampleRate int
	seq        *Sequencer
	log        zerolog.Logger

	state            State
	silenceStartedAt time.Time
	chunks           []audio.Chunk
}

// NewAdaptive creates a silence-bounded policy
func NewAdaptive(sampleRate int, threshold time.Duration, seq *Sequencer, log zerolog.Logger) (*Adaptive, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("silence threshold must be positive, got %v", threshold)
	}

	return &Adaptive{
		threshold:  threshold,
		sampleRate: sampleRate,
		seq:        seq,
		log:        log,
	}, nil
}

func (a *Adaptive) Name() string { return PolicyAdaptive }

func (a *Adaptive) NeedsSpeechFlag() bool { return true }

// State returns the current state
func (a *Adaptive) State() State { return a.state }

func (a *Adaptive) Pending() int { return len(a.chunks) }

func (a *Adaptive) Push(chunk audio.Chunk, speech bool, now time.Time) *Segment {
	if speech {
		if a.state == Idle {
			a.log.Info().Msg("Recording started")
		}
		a.state = Recording
		a.silenceStartedAt = time.Time{}
		a.chunks = append(a.chunks, chunk)
		return nil
	}

	if a.state == Idle {
		return nil
	}

	if a.silenceStartedAt.IsZero() {
		a.state = TrailingSilence
		a.silenceStartedAt = now
		return nil
	}

	if now.Sub(a.silenceStartedAt) <= a.threshold {
		return nil
	}

	a.log.Info().Int("chunks", len(a.chunks)).Msg("Recording stopped")
	return a.finalize()
}

// Flush discards the open segment: without the silence trigger the
// utterance is not considered complete.
func (a *Adaptive) Flush() *Segment {
	a.reset()
	return nil
}

func (a *Adaptive) finalize() *Segment {
	if len(a.chunks) == 0 {
		a.reset()
		return nil
	}

	seg := &Segment{
		Seq:        a.seq.Next(),
		Policy:     PolicyAdaptive,
		SampleRate: a.sampleRate,
		Chunks:     a.chunks,
	}
	a.chunks = nil
	a.reset()
	return seg
}

func (a *Adaptive) reset() {
	a.state = Idle
	a.silenceStartedAt = time.Time{}
	a.chunks = nil
}
