package display

import (
	"context"
	"fmt"
	"sync"

	"github.com/petems/doa-recorder/internal/device"
	"github.com/petems/doa-recorder/internal/segment"
	"github.com/rs/zerolog"
)

// Display renders the live angle and transcripts. Implementations must be
// safe for concurrent use: angles and transcripts arrive from separate loops.
type Display interface {
	ShowAngle(sample device.DOASample)
	ShowTranscript(text string)
}

// Console logs angles and transcripts instead of drawing them
type Console struct {
	log zerolog.Logger

	mu        sync.Mutex
	lastAngle device.DOASample
	hasAngle  bool
}

func New(log zerolog.Logger) *Console {
	return &Console{log: log}
}

// ShowAngle logs every sample at debug and changes of bearing at info
func (c *Console) ShowAngle(sample device.DOASample) {
	c.mu.Lock()
	changed := !c.hasAngle || sample != c.lastAngle
	c.lastAngle = sample
	c.hasAngle = true
	c.mu.Unlock()

	c.log.Debug().Str("angle", sample.String()).Msg("Voice angle")
	if changed {
		c.log.Info().Str("angle", sample.String()).Msg("Voice angle changed")
	}
}

func (c *Console) ShowTranscript(text string) {
	c.log.Info().Str("text", text).Msg("Transcript")
}

// LastAngle returns the most recent sample shown
func (c *Console) LastAngle() (device.DOASample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAngle, c.hasAngle
}

// Consume logs each finished segment file; it stands in for an uploader
func (c *Console) Consume(_ context.Context, h segment.Handle) error {
	c.log.Info().
		Uint64("seq", h.Seq).
		Str("path", h.Path).
		Str("duration", fmt.Sprintf("%.2fs", h.Duration.Seconds())).
		Msg("Segment ready")
	return nil
}
