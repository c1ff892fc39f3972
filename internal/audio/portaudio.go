package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

type portAudioCapture struct {
	log    zerolog.Logger
	stream *portaudio.Stream
	buffer []int16

	closeOnce sync.Once
	closeErr  error
}

// New creates a new PortAudio-based audio capture
func New(log zerolog.Logger) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{log: log}, nil
}

func (p *portAudioCapture) Open(format Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if p.stream != nil {
		return fmt.Errorf("%w: stream already open", ErrOpen)
	}

	device, err := p.findDevice(format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}

	// Blocking int16 stream; each Read fills exactly one chunk
	buffer := make([]int16, format.ChunkSize*format.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.Channels,
			Latency:  device.DefaultHighInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: format.ChunkSize,
	}, buffer)
	if err != nil {
		return fmt.Errorf("%w: failed to open audio stream: %v", ErrOpen, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: failed to start audio stream: %v", ErrOpen, err)
	}

	p.stream = stream
	p.buffer = buffer

	p.log.Info().
		Str("device", device.Name).
		Int("sample_rate", format.SampleRate).
		Int("chunk_size", format.ChunkSize).
		Msg("Start stream")

	return nil
}

func (p *portAudioCapture) findDevice(format Format) (*portaudio.DeviceInfo, error) {
	if format.DeviceIndex < 0 && format.DeviceName == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	if format.DeviceIndex >= 0 {
		if format.DeviceIndex >= len(devices) {
			return nil, fmt.Errorf("device index %d out of range (%d devices)", format.DeviceIndex, len(devices))
		}
		return devices[format.DeviceIndex], nil
	}

	for _, d := range devices {
		if d.Name == format.DeviceName {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", format.DeviceName)
}

func (p *portAudioCapture) ReadChunk() (Chunk, error) {
	if p.stream == nil {
		return Chunk{}, fmt.Errorf("%w: stream not open", ErrStreamRead)
	}

	overflowed := false
	if err := p.stream.Read(); err != nil {
		// Overruns keep whatever the driver managed to deliver
		if !errors.Is(err, portaudio.InputOverflowed) {
			return Chunk{}, fmt.Errorf("%w: %v", ErrStreamRead, err)
		}
		overflowed = true
	}

	samples := make([]int16, len(p.buffer))
	copy(samples, p.buffer)

	return Chunk{Samples: samples, Overflowed: overflowed}, nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for i, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				Index:   i,
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.stream != nil {
			errs = append(errs, p.stream.Stop(), p.stream.Close())
			p.log.Info().Msg("Stop stream")
		}
		errs = append(errs, portaudio.Terminate())
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
