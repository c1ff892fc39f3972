package segment

import (
	"errors"
	"testing"
	"time"

	"github.com/petems/doa-recorder/internal/audio"
	"github.com/petems/doa-recorder/internal/device"
	"github.com/rs/zerolog"
)

type scriptedSource struct {
	chunks []audio.Chunk
	err    error
	reads  int
}

func (s *scriptedSource) ReadChunk() (audio.Chunk, error) {
	if s.reads >= len(s.chunks) {
		if s.err != nil {
			return audio.Chunk{}, s.err
		}
		return audio.Chunk{}, errors.New("script exhausted")
	}
	c := s.chunks[s.reads]
	s.reads++
	return c, nil
}

type scriptedParams struct {
	angles    []int
	speech    []bool
	doaErr    error
	speechErr error
	doaReads  int
	flagReads int
}

func (p *scriptedParams) DOA() (device.DOASample, error) {
	if p.doaErr != nil {
		return device.Unavailable, p.doaErr
	}
	a := p.angles[p.doaReads%len(p.angles)]
	p.doaReads++
	return device.DOASample{Degrees: a, OK: true}, nil
}

func (p *scriptedParams) SpeechDetected() (bool, error) {
	if p.speechErr != nil {
		return false, p.speechErr
	}
	s := p.speech[p.flagReads%len(p.speech)]
	p.flagReads++
	return s, nil
}

func chunks(n int) []audio.Chunk {
	out := make([]audio.Chunk, n)
	for i := range out {
		out[i] = chunk(int16(i))
	}
	return out
}

func TestSegmenterOneDOAPerChunkFixed(t *testing.T) {
	policy, err := NewFixed(1000, 500, 1, &Sequencer{})
	if err != nil {
		t.Fatalf("NewFixed failed: %v", err)
	}
	params := &scriptedParams{angles: []int{10, 15, 20}}
	s := NewSegmenter(&scriptedSource{chunks: chunks(5)}, params, policy, nil)

	var angles []int
	var segments int
	for i := 0; i < 5; i++ {
		step, err := s.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !step.Processed || !step.DOA.OK {
			t.Fatalf("step %d: expected processed chunk with DOA, got %+v", i, step)
		}
		angles = append(angles, step.DOA.Degrees)
		if step.Segment != nil {
			segments++
		}
	}

	want := []int{10, 15, 20, 10, 15}
	for i := range want {
		if angles[i] != want[i] {
			t.Errorf("angle %d: expected %d, got %d", i, want[i], angles[i])
		}
	}
	if segments != 2 {
		t.Errorf("expected 2 segments, got %d", segments)
	}
	if params.flagReads != 0 {
		t.Errorf("fixed policy must not poll the speech flag, got %d reads", params.flagReads)
	}
}

func TestSegmenterOneDOAPerChunkAdaptive(t *testing.T) {
	policy, err := NewAdaptive(16000, DefaultSilenceThreshold, &Sequencer{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAdaptive failed: %v", err)
	}
	params := &scriptedParams{angles: []int{90}, speech: []bool{true, true, false, false, false}}

	clock := epoch
	now := func() time.Time {
		clock = clock.Add(300 * time.Millisecond)
		return clock
	}
	s := NewSegmenter(&scriptedSource{chunks: chunks(5)}, params, policy, now)

	var doaCount int
	var seg *Segment
	for i := 0; i < 5; i++ {
		step, err := s.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if step.DOA.OK {
			doaCount++
		}
		if step.Segment != nil {
			seg = step.Segment
		}
	}

	if doaCount != 5 {
		t.Errorf("expected 5 DOA samples, got %d", doaCount)
	}
	if params.flagReads != 5 {
		t.Errorf("expected 5 speech flag reads, got %d", params.flagReads)
	}
	if seg == nil {
		t.Fatal("expected a segment after 600ms of silence")
	}
	if len(seg.Chunks) != 2 {
		t.Errorf("expected 2 speech chunks, got %d", len(seg.Chunks))
	}
}

func TestSegmenterReadError(t *testing.T) {
	readErr := errors.New("boom")
	policy, _ := NewFixed(1000, 500, 1, &Sequencer{})
	s := NewSegmenter(&scriptedSource{err: readErr}, &scriptedParams{angles: []int{1}}, policy, nil)

	step, err := s.Step()
	if !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}
	if step.Processed {
		t.Error("no chunk was read; step must not be marked processed")
	}
}

func TestSegmenterDOAFailureMarksUnavailable(t *testing.T) {
	policy, _ := NewFixed(1000, 1000, 1, &Sequencer{})
	params := &scriptedParams{doaErr: device.ErrDeviceIO}
	s := NewSegmenter(&scriptedSource{chunks: chunks(1)}, params, policy, nil)

	step, err := s.Step()
	if !errors.Is(err, device.ErrDeviceIO) {
		t.Fatalf("expected ErrDeviceIO, got %v", err)
	}
	if !step.Processed || step.DOA != device.Unavailable {
		t.Errorf("expected processed step with unavailable DOA, got %+v", step)
	}
	// The chunk completed the segment before the DOA read failed
	if step.Segment == nil {
		t.Error("expected the completed segment to be returned with the error")
	}
}

func TestSegmenterSpeechFlagFailure(t *testing.T) {
	policy, _ := NewAdaptive(16000, DefaultSilenceThreshold, &Sequencer{}, zerolog.Nop())
	params := &scriptedParams{angles: []int{1}, speechErr: device.ErrDeviceIO}
	s := NewSegmenter(&scriptedSource{chunks: chunks(1)}, params, policy, nil)

	step, err := s.Step()
	if !errors.Is(err, device.ErrDeviceIO) {
		t.Fatalf("expected ErrDeviceIO, got %v", err)
	}
	if !step.Processed || step.DOA != device.Unavailable {
		t.Errorf("expected processed step with unavailable DOA, got %+v", step)
	}
	if params.doaReads != 0 {
		t.Errorf("DOA must not be polled after a failed speech read, got %d reads", params.doaReads)
	}
}

func TestSegmenterFlush(t *testing.T) {
	fixed, _ := NewFixed(16000, 1024, 5, &Sequencer{})
	s := NewSegmenter(&scriptedSource{chunks: chunks(3)}, &scriptedParams{angles: []int{1}}, fixed, nil)
	for i := 0; i < 3; i++ {
		if _, err := s.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	seg, dropped := s.Flush()
	if seg == nil || len(seg.Chunks) != 3 || dropped != 0 {
		t.Errorf("fixed flush: expected 3-chunk segment, got %v (dropped %d)", seg, dropped)
	}

	adaptive, _ := NewAdaptive(16000, DefaultSilenceThreshold, &Sequencer{}, zerolog.Nop())
	s = NewSegmenter(&scriptedSource{chunks: chunks(3)}, &scriptedParams{angles: []int{1}, speech: []bool{true}}, adaptive, nil)
	for i := 0; i < 3; i++ {
		if _, err := s.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	seg, dropped = s.Flush()
	if seg != nil || dropped != 3 {
		t.Errorf("adaptive flush: expected discard of 3 chunks, got %v (dropped %d)", seg, dropped)
	}
}
