package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrWrite reports a failure to persist a segment
var ErrWrite = errors.New("segment write failed")

const (
	wavBitDepth    = 16
	wavChannels    = 1
	wavFormatPCM   = 1
	wavTempSuffix  = ".tmp"
	wavFileSuffix  = ".wav"
	outputDirPerms = 0755
)

// Handle identifies a persisted segment for downstream consumers
type Handle struct {
	Seq      uint64
	Path     string
	Chunks   int
	Duration time.Duration
	Session  string
}

// Writer persists finalized segments
type Writer interface {
	Write(seg *Segment) (Handle, error)
}

// WAVWriter writes each segment to <dir>/<seq>.wav
type WAVWriter struct {
	dir        string
	sampleRate int
}

// NewWAVWriter creates dir if needed
func NewWAVWriter(dir string, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if err := os.MkdirAll(dir, outputDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &WAVWriter{dir: dir, sampleRate: sampleRate}, nil
}

// Write encodes seg as mono 16-bit PCM. The file appears under its final
// name only once fully written.
func (w *WAVWriter) Write(seg *Segment) (Handle, error) {
	if seg == nil || len(seg.Chunks) == 0 {
		return Handle{}, fmt.Errorf("%w: empty segment", ErrWrite)
	}

	path := filepath.Join(w.dir, strconv.FormatUint(seg.Seq, 10)+wavFileSuffix)
	tmpPath := path + wavTempSuffix

	if err := w.encode(tmpPath, seg); err != nil {
		os.Remove(tmpPath)
		return Handle{}, fmt.Errorf("%w: segment %d: %v", ErrWrite, seg.Seq, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return Handle{}, fmt.Errorf("%w: segment %d: %v", ErrWrite, seg.Seq, err)
	}

	return Handle{
		Seq:      seg.Seq,
		Path:     path,
		Chunks:   len(seg.Chunks),
		Duration: time.Duration(seg.Samples()) * time.Second / time.Duration(w.sampleRate),
	}, nil
}

func (w *WAVWriter) encode(path string, seg *Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	data := make([]int, 0, seg.Samples())
	for _, c := range seg.Chunks {
		for _, s := range c.Samples {
			data = append(data, int(s))
		}
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: wavChannels,
			SampleRate:  w.sampleRate,
		},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	enc := wav.NewEncoder(f, w.sampleRate, wavBitDepth, wavChannels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return f.Close()
}
