package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrStreamRead reports a fatal audio read failure. Input overflow is not one.
var ErrStreamRead = errors.New("audio stream read failed")

// ErrOpen reports that the input stream could not be opened
var ErrOpen = errors.New("audio stream open failed")

// Capture defines the interface for audio capture
type Capture interface {
	Open(format Format) error
	ReadChunk() (Chunk, error)
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	Index   int
	ID      string
	Name    string
	Default bool
}

// Format describes the input stream
type Format struct {
	SampleRate  int
	Channels    int
	SampleWidth int // bytes per sample
	ChunkSize   int // frames per read
	DeviceIndex int // -1 selects by name or the default input
	DeviceName  string
}

// DefaultFormat is what the microphone array's single-channel firmware delivers
func DefaultFormat() Format {
	return Format{
		SampleRate:  16000,
		Channels:    1,
		SampleWidth: 2,
		ChunkSize:   1024,
		DeviceIndex: -1,
	}
}

// Validate checks the format is one this package can capture
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("only mono capture is supported, got %d channels", f.Channels)
	}
	if f.SampleWidth != 2 {
		return fmt.Errorf("only 16-bit samples are supported, got width %d", f.SampleWidth)
	}
	if f.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", f.ChunkSize)
	}
	return nil
}

// ChunkDuration is the wall time covered by one chunk
func (f Format) ChunkDuration() time.Duration {
	return time.Duration(f.ChunkSize) * time.Second / time.Duration(f.SampleRate)
}

// Chunk is one fixed-size block of mono PCM read in a single call
type Chunk struct {
	Samples []int16
	// Overflowed is set when the driver dropped input before this read
	Overflowed bool
}

// Len returns the number of samples in the chunk
func (c Chunk) Len() int {
	return len(c.Samples)
}
