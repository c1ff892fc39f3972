package audio

import (
	"testing"
	"time"
)

func TestDefaultFormatIsValid(t *testing.T) {
	f := DefaultFormat()
	if err := f.Validate(); err != nil {
		t.Fatalf("default format should be valid: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || f.SampleWidth != 2 || f.ChunkSize != 1024 {
		t.Errorf("unexpected default format %+v", f)
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Format)
	}{
		{name: "zero sample rate", mutate: func(f *Format) { f.SampleRate = 0 }},
		{name: "stereo", mutate: func(f *Format) { f.Channels = 2 }},
		{name: "24-bit", mutate: func(f *Format) { f.SampleWidth = 3 }},
		{name: "empty chunk", mutate: func(f *Format) { f.ChunkSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DefaultFormat()
			tt.mutate(&f)
			if err := f.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestChunkDuration(t *testing.T) {
	f := DefaultFormat()
	if got, want := f.ChunkDuration(), 64*time.Millisecond; got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestChunkLen(t *testing.T) {
	c := Chunk{Samples: make([]int16, 1024)}
	if c.Len() != 1024 {
		t.Errorf("expected 1024 samples, got %d", c.Len())
	}
}
