package segment

import (
	"fmt"
	"time"

	"github.com/petems/doa-recorder/internal/audio"
	"github.com/petems/doa-recorder/internal/device"
)

// ChunkReader is the part of audio.Capture the segmenter needs
type ChunkReader interface {
	ReadChunk() (audio.Chunk, error)
}

// ParameterReader is the part of device.Reader the segmenter needs
type ParameterReader interface {
	DOA() (device.DOASample, error)
	SpeechDetected() (bool, error)
}

// Step is the outcome of processing one chunk
type Step struct {
	// Processed is false when no chunk could be read
	Processed  bool
	Overflowed bool
	DOA        device.DOASample
	Segment    *Segment
}

// Segmenter runs one capture iteration at a time: read a chunk, poll the
// device, apply the policy.
type Segmenter struct {
	source ChunkReader
	params ParameterReader
	policy Policy
	now    func() time.Time
}

// NewSegmenter wires a policy to its inputs. now may be nil.
func NewSegmenter(source ChunkReader, params ParameterReader, policy Policy, now func() time.Time) *Segmenter {
	if now == nil {
		now = time.Now
	}
	return &Segmenter{
		source: source,
		params: params,
		policy: policy,
		now:    now,
	}
}

// Policy returns the active policy
func (s *Segmenter) Policy() Policy { return s.policy }

// Step processes exactly one chunk. Whenever a chunk was read the result
// carries one DOA entry, the unavailable marker if the device failed, even
// when an error is returned alongside it.
func (s *Segmenter) Step() (Step, error) {
	chunk, err := s.source.ReadChunk()
	if err != nil {
		return Step{}, err
	}

	step := Step{Processed: true, Overflowed: chunk.Overflowed, DOA: device.Unavailable}

	speech := false
	if s.policy.NeedsSpeechFlag() {
		speech, err = s.params.SpeechDetected()
		if err != nil {
			return step, fmt.Errorf("read speech flag: %w", err)
		}
	}

	step.Segment = s.policy.Push(chunk, speech, s.now())

	doa, err := s.params.DOA()
	if err != nil {
		return step, fmt.Errorf("read DOA: %w", err)
	}
	step.DOA = doa

	return step, nil
}

// Flush ends the open segment per the policy's shutdown rule. It returns the
// segment to emit, if any, and the number of buffered chunks dropped.
func (s *Segmenter) Flush() (*Segment, int) {
	pending := s.policy.Pending()
	seg := s.policy.Flush()
	if seg != nil {
		return seg, 0
	}
	return nil, pending
}
