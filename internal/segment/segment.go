// Package segment decides where one recorded utterance ends and the next
// begins, and persists finished segments as WAV files.
//
// A Policy owns the segment it is filling. Once Push or Flush returns a
// *Segment the policy never touches it again; the caller owns it from then on.
package segment

import (
	"time"

	"github.com/petems/doa-recorder/internal/audio"
)

// Segment is an ordered run of chunks finalized as one unit
type Segment struct {
	Seq        uint64
	Policy     string
	SampleRate int
	Chunks     []audio.Chunk
}

// Samples returns the total number of samples across all chunks
func (s *Segment) Samples() int {
	n := 0
	for _, c := range s.Chunks {
		n += c.Len()
	}
	return n
}

// Duration is the audio length of the segment
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Samples()) * time.Second / time.Duration(s.SampleRate)
}

// Sequencer hands out segment numbers starting at 0. It is not safe for
// concurrent use; only the capture loop finalizes segments.
type Sequencer struct {
	next uint64
}

// Next returns the next sequence number
func (s *Sequencer) Next() uint64 {
	n := s.next
	s.next++
	return n
}

// Policy decides segment boundaries one chunk at a time
type Policy interface {
	Name() string
	// NeedsSpeechFlag reports whether Push expects a real speech flag
	NeedsSpeechFlag() bool
	// Push consumes a chunk and returns a finalized segment when a boundary is reached
	Push(chunk audio.Chunk, speech bool, now time.Time) *Segment
	// Pending is the number of chunks buffered in the open segment
	Pending() int
	// Flush ends the open segment on shutdown. A nil result means nothing is emitted.
	Flush() *Segment
}

const (
	PolicyFixed    = "fixed"
	PolicyAdaptive = "adaptive"
)
