package segment

import (
	"fmt"
	"math"
	"time"

	"github.com/petems/doa-recorder/internal/audio"
)

// ChunksPerSegment is ceil(sampleRate / chunkSize * seconds)
func ChunksPerSegment(sampleRate, chunkSize int, seconds float64) int {
	return int(math.Ceil(float64(sampleRate) / float64(chunkSize) * seconds))
}

// Fixed cuts a segment every time a fixed number of chunks has been collected
type Fixed struct {
	target     int
	sampleRate int
	seq        *Sequencer
	chunks     []audio.Chunk
}

// NewFixed creates a fixed-duration policy of recordSeconds per segment
func NewFixed(sampleRate, chunkSize int, recordSeconds float64, seq *Sequencer) (*Fixed, error) {
	if sampleRate <= 0 || chunkSize <= 0 {
		return nil, fmt.Errorf("sample rate and chunk size must be positive, got %d and %d", sampleRate, chunkSize)
	}
	target := ChunksPerSegment(sampleRate, chunkSize, recordSeconds)
	if target < 1 {
		return nil, fmt.Errorf("record seconds %v yields no chunks per segment", recordSeconds)
	}

	return &Fixed{
		target:     target,
		sampleRate: sampleRate,
		seq:        seq,
		chunks:     make([]audio.Chunk, 0, target),
	}, nil
}

func (f *Fixed) Name() string { return PolicyFixed }

func (f *Fixed) NeedsSpeechFlag() bool { return false }

// Target is the chunk count of every full segment
func (f *Fixed) Target() int { return f.target }

func (f *Fixed) Pending() int { return len(f.chunks) }

func (f *Fixed) Push(chunk audio.Chunk, _ bool, _ time.Time) *Segment {
	f.chunks = append(f.chunks, chunk)
	if len(f.chunks) < f.target {
		return nil
	}
	return f.finalize()
}

// Flush emits whatever was captured so far
func (f *Fixed) Flush() *Segment {
	if len(f.chunks) == 0 {
		return nil
	}
	return f.finalize()
}

func (f *Fixed) finalize() *Segment {
	seg := &Segment{
		Seq:        f.seq.Next(),
		Policy:     PolicyFixed,
		SampleRate: f.sampleRate,
		Chunks:     f.chunks,
	}
	f.chunks = make([]audio.Chunk, 0, f.target)
	return seg
}
