// Package pipeline runs a capture session: the capture stage produces DOA
// samples and segments, the writer stage persists segments, and optional
// display and upload stages consume the results. Stages talk only through
// FIFO queues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/petems/doa-recorder/internal/audio"
	"github.com/petems/doa-recorder/internal/device"
	"github.com/petems/doa-recorder/internal/display"
	"github.com/petems/doa-recorder/internal/metrics"
	"github.com/petems/doa-recorder/internal/queue"
	"github.com/petems/doa-recorder/internal/segment"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRun is returned when Run is called a second time
var ErrAlreadyRun = errors.New("pipeline already run")

// DefaultFlushTimeout bounds the hand-off of the last segment at shutdown
const DefaultFlushTimeout = 5 * time.Second

// HandleConsumer receives every persisted segment, e.g. an uploader
type HandleConsumer interface {
	Consume(ctx context.Context, h segment.Handle) error
}

type Config struct {
	Capture audio.Capture
	Format  audio.Format
	Params  segment.ParameterReader
	// Device is closed together with the capture stream. Optional.
	Device io.Closer
	Policy segment.Policy
	Writer segment.Writer

	// Optional. When nil, angles stay queued for the caller.
	Display display.Display
	// Optional. When nil, handles stay queued for the caller, and the
	// transcripts queue still closes once every segment is written: text
	// for the last segments must be put before Run returns.
	Uploader HandleConsumer

	// QueueCapacity > 0 bounds every queue. Bounded queues need Display and
	// Uploader so that every queue has a consumer while Run is active.
	QueueCapacity int
	// FlushTimeout bounds the final segment hand-off; DefaultFlushTimeout when zero
	FlushTimeout time.Duration
	Metrics      *metrics.Metrics // Optional
	Logger       zerolog.Logger
	Now          func() time.Time
}

type Pipeline struct {
	cfg       Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	session   string
	segmenter *segment.Segmenter

	angles      queue.Queue[device.DOASample]
	segments    queue.Queue[*segment.Segment]
	handles     queue.Queue[segment.Handle]
	transcripts queue.Queue[string]

	started     atomic.Bool
	releaseOnce sync.Once
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Capture == nil {
		return nil, fmt.Errorf("capture is required")
	}
	if cfg.Params == nil {
		return nil, fmt.Errorf("device parameter reader is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("segmentation policy is required")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("segment writer is required")
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueCapacity > 0 && (cfg.Display == nil || cfg.Uploader == nil) {
		return nil, fmt.Errorf("bounded queues require both a display and an uploader")
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	session := uuid.NewString()

	return &Pipeline{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("session", session).Str("policy", cfg.Policy.Name()).Logger(),
		metrics:   m,
		session:   session,
		segmenter: segment.NewSegmenter(cfg.Capture, cfg.Params, cfg.Policy, cfg.Now),

		angles:      queue.New[device.DOASample](cfg.QueueCapacity),
		segments:    queue.New[*segment.Segment](cfg.QueueCapacity),
		handles:     queue.New[segment.Handle](cfg.QueueCapacity),
		transcripts: queue.New[string](cfg.QueueCapacity),
	}, nil
}

// Session identifies this run in logs and segment handles
func (p *Pipeline) Session() string { return p.session }

// Angles yields one DOA sample per captured chunk
func (p *Pipeline) Angles() queue.Queue[device.DOASample] { return p.angles }

// Handles yields persisted segments in sequence order
func (p *Pipeline) Handles() queue.Queue[segment.Handle] { return p.handles }

// Transcripts accepts text produced from segments; the display stage shows
// it. The queue is closed once the writer and upload stages have finished,
// after which Put returns queue.ErrClosed.
func (p *Pipeline) Transcripts() queue.Queue[string] { return p.transcripts }

// Run captures until ctx is cancelled or the session fails, then drains
// every downstream stage before returning. The returned error is the one
// that ended the session; cancellation is not an error.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	// Downstream stages drain their queues after cancellation
	drain := context.WithoutCancel(ctx)

	var g errgroup.Group
	var consumers sync.WaitGroup

	g.Go(func() error {
		return p.runCapture(ctx, drain)
	})

	consumers.Add(1)
	g.Go(func() error {
		defer consumers.Done()
		p.runWriter(drain)
		return nil
	})

	if p.cfg.Uploader != nil {
		consumers.Add(1)
		g.Go(func() error {
			defer consumers.Done()
			p.runUpload(drain)
			return nil
		})
	}

	g.Go(func() error {
		consumers.Wait()
		p.transcripts.Close()
		return nil
	})

	if p.cfg.Display != nil {
		g.Go(func() error {
			p.runAngles(drain)
			return nil
		})
		g.Go(func() error {
			p.runTranscripts(drain)
			return nil
		})
	}

	err := g.Wait()
	p.log.Info().Msg("Pipeline stopped")
	return err
}

func (p *Pipeline) runCapture(ctx, drain context.Context) error {
	defer func() {
		p.angles.Close()
		p.segments.Close()
		p.release()
	}()

	if err := p.cfg.Capture.Open(p.cfg.Format); err != nil {
		p.log.Error().Err(err).Msg("Failed to open capture stream")
		return err
	}
	p.log.Info().
		Int("sample_rate", p.cfg.Format.SampleRate).
		Int("chunk_size", p.cfg.Format.ChunkSize).
		Msg("Capture started")

	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("Capture cancelled")
			p.flush(drain)
			return nil
		}

		// Puts honour cancellation so a stalled consumer cannot hold the device
		step, err := p.segmenter.Step()
		p.emit(ctx, step)

		if err != nil {
			p.log.Error().Err(err).Msg("Capture session ended")
			p.flush(drain)
			return err
		}
	}
}

func (p *Pipeline) emit(ctx context.Context, step segment.Step) {
	if !step.Processed {
		return
	}

	p.metrics.ChunksRead.Inc()
	if step.Overflowed {
		p.metrics.ChunkOverflows.Inc()
		p.log.Debug().Msg("Input overflowed")
	}
	if !step.DOA.OK {
		p.metrics.DOAUnavailable.Inc()
	}

	if err := p.angles.Put(ctx, step.DOA); err != nil {
		p.metrics.QueueDropped.WithLabelValues("angles").Inc()
		p.log.Warn().Err(err).Str("angle", step.DOA.String()).Msg("Dropped DOA sample")
	}
	p.metrics.QueueDepth.WithLabelValues("angles").Set(float64(p.angles.Len()))

	if step.Segment != nil {
		p.enqueueSegment(ctx, step.Segment)
	}
}

func (p *Pipeline) enqueueSegment(ctx context.Context, seg *segment.Segment) {
	p.metrics.SegmentsFinalized.WithLabelValues(p.cfg.Policy.Name()).Inc()
	p.log.Debug().Uint64("seq", seg.Seq).Int("chunks", len(seg.Chunks)).Msg("Segment finalized")

	if err := p.segments.Put(ctx, seg); err != nil {
		p.metrics.QueueDropped.WithLabelValues("segments").Inc()
		p.log.Warn().Err(err).Uint64("seq", seg.Seq).Msg("Dropped segment")
	}
	p.metrics.QueueDepth.WithLabelValues("segments").Set(float64(p.segments.Len()))
}

func (p *Pipeline) flush(drain context.Context) {
	seg, dropped := p.segmenter.Flush()
	if seg != nil {
		p.log.Info().Uint64("seq", seg.Seq).Int("chunks", len(seg.Chunks)).Msg("Flushed partial segment")
		ctx, cancel := context.WithTimeout(drain, p.cfg.FlushTimeout)
		defer cancel()
		p.enqueueSegment(ctx, seg)
		return
	}
	if dropped > 0 {
		p.metrics.SegmentsDiscarded.Inc()
		p.log.Info().Int("chunks", dropped).Msg("Discarded unfinished segment")
	}
}

// release closes the capture stream and the device handle exactly once
func (p *Pipeline) release() {
	p.releaseOnce.Do(func() {
		if err := p.cfg.Capture.Close(); err != nil {
			p.log.Error().Err(err).Msg("Failed to close capture stream")
		}
		if p.cfg.Device != nil {
			if err := p.cfg.Device.Close(); err != nil {
				p.log.Error().Err(err).Msg("Failed to close device")
			}
		}
	})
}

func (p *Pipeline) runWriter(ctx context.Context) {
	defer p.handles.Close()

	for {
		seg, err := p.segments.Get(ctx)
		if err != nil {
			return
		}
		p.metrics.QueueDepth.WithLabelValues("segments").Set(float64(p.segments.Len()))

		h, err := p.cfg.Writer.Write(seg)
		if err != nil {
			p.metrics.SegmentWriteErrors.Inc()
			p.log.Error().Err(err).Uint64("seq", seg.Seq).Msg("Failed to save segment")
			continue
		}
		h.Session = p.session

		p.metrics.SegmentsWritten.Inc()
		p.metrics.SegmentDuration.Observe(h.Duration.Seconds())
		p.log.Info().Uint64("seq", h.Seq).Str("path", h.Path).Msg("Done save")

		if err := p.handles.Put(ctx, h); err != nil {
			p.log.Warn().Err(err).Uint64("seq", h.Seq).Msg("Dropped segment handle")
		}
		p.metrics.QueueDepth.WithLabelValues("handles").Set(float64(p.handles.Len()))
	}
}

func (p *Pipeline) runUpload(ctx context.Context) {
	for {
		h, err := p.handles.Get(ctx)
		if err != nil {
			return
		}
		p.metrics.QueueDepth.WithLabelValues("handles").Set(float64(p.handles.Len()))

		if err := p.cfg.Uploader.Consume(ctx, h); err != nil {
			p.log.Error().Err(err).Uint64("seq", h.Seq).Msg("Upload error")
		}
	}
}

func (p *Pipeline) runAngles(ctx context.Context) {
	for {
		a, err := p.angles.Get(ctx)
		if err != nil {
			return
		}
		p.metrics.QueueDepth.WithLabelValues("angles").Set(float64(p.angles.Len()))
		p.cfg.Display.ShowAngle(a)
	}
}

func (p *Pipeline) runTranscripts(ctx context.Context) {
	for {
		text, err := p.transcripts.Get(ctx)
		if err != nil {
			return
		}
		p.cfg.Display.ShowTranscript(text)
	}
}
