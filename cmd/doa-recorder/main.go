package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/doa-recorder/internal/audio"
	"github.com/petems/doa-recorder/internal/config"
	"github.com/petems/doa-recorder/internal/device"
	"github.com/petems/doa-recorder/internal/display"
	"github.com/petems/doa-recorder/internal/logging"
	"github.com/petems/doa-recorder/internal/metrics"
	"github.com/petems/doa-recorder/internal/pipeline"
	"github.com/petems/doa-recorder/internal/segment"
	"github.com/rs/zerolog"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default: platform config path)")
	policyName := flag.String("policy", "", "segmentation policy: fixed or adaptive")
	outputDir := flag.String("output-dir", "", "directory for segment files")
	listDevices := flag.Bool("list-devices", false, "list audio input devices and exit")
	writeConfig := flag.Bool("write-config", false, "write the effective config and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("doa-recorder %s (%s)\n", Version, Commit)
		return
	}

	var overrides []config.Option
	if *policyName != "" {
		overrides = append(overrides, config.WithOverride("segment.policy", *policyName))
	}
	if *outputDir != "" {
		overrides = append(overrides, config.WithOverride("segment.output_dir", *outputDir))
	}

	loadPath := *configPath
	if *writeConfig && loadPath != "" {
		// -write-config may create the file it names
		if _, err := os.Stat(loadPath); errors.Is(err, fs.ErrNotExist) {
			loadPath = ""
		}
	}

	cfg, err := config.Load(loadPath, overrides...)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	if *writeConfig {
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		if err := cfg.Save(path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to write config")
		}
		log.Info().Str("path", path).Msg("Config written")
		return
	}

	// Initialize audio capture
	capture, err := audio.New(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}

	if *listDevices {
		printDevices(capture, log)
		return
	}

	// Initialize the DSP control channel
	handle, err := device.Open(cfg.Device.VendorID, cfg.Device.ProductID, cfg.Device.Timeout)
	if err != nil {
		capture.Close()
		log.Fatal().Err(err).Msg("Failed to open microphone array")
	}
	reader := device.NewReader(handle)

	// Until the pipeline runs, fatal paths release the stream and device here
	fatal := func(err error, msg string) {
		capture.Close()
		handle.Close()
		log.Fatal().Err(err).Msg(msg)
	}

	if v, err := reader.Read(device.GammaVADThreshold); err != nil {
		log.Warn().Err(err).Msg("Failed to read VAD threshold")
	} else {
		log.Info().Float64("gamma_vad_threshold", v.Float()).Msg("Device ready")
	}

	format := audio.Format{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		SampleWidth: cfg.Audio.SampleWidth,
		ChunkSize:   cfg.Audio.ChunkSize,
		DeviceIndex: cfg.Audio.DeviceIndex,
		DeviceName:  cfg.Audio.DeviceName,
	}

	policy, err := newPolicy(cfg, format, log)
	if err != nil {
		fatal(err, "Failed to create segmentation policy")
	}

	writer, err := segment.NewWAVWriter(cfg.Segment.OutputDir, format.SampleRate)
	if err != nil {
		fatal(err, "Failed to initialize segment writer")
	}

	m := metrics.New()
	console := display.New(log)

	p, err := pipeline.New(pipeline.Config{
		Capture:       capture,
		Format:        format,
		Params:        reader,
		Device:        handle,
		Policy:        policy,
		Writer:        writer,
		Display:       console,
		Uploader:      console,
		QueueCapacity: cfg.Queue.BoundedCapacity,
		Metrics:       m,
		Logger:        log,
	})
	if err != nil {
		fatal(err, "Failed to create pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	srv := serveMetrics(cfg.Metrics.Address, m, log)

	log.Info().
		Str("version", Version).
		Str("session", p.Session()).
		Str("policy", policy.Name()).
		Str("output_dir", cfg.Segment.OutputDir).
		Msg("DOA recorder starting...")

	runErr := p.Run(ctx)

	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
		stop()
	}

	if runErr != nil {
		log.Fatal().Err(runErr).Msg("Capture session failed")
	}
}

func newPolicy(cfg *config.Config, format audio.Format, log zerolog.Logger) (segment.Policy, error) {
	seq := &segment.Sequencer{}

	if cfg.Segment.Policy == segment.PolicyAdaptive {
		adaptive, err := segment.NewAdaptive(format.SampleRate, cfg.Segment.SilenceThreshold, seq, log)
		if err != nil {
			return nil, err
		}
		return adaptive, nil
	}

	fixed, err := segment.NewFixed(format.SampleRate, format.ChunkSize, cfg.Segment.RecordSeconds, seq)
	if err != nil {
		return nil, err
	}
	log.Info().Int("chunks_per_segment", fixed.Target()).Msg("Fixed segmentation")
	return fixed, nil
}

func serveMetrics(addr string, m *metrics.Metrics, log zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return srv
}

func printDevices(capture audio.Capture, log zerolog.Logger) {
	defer capture.Close()

	devices, err := capture.ListDevices()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list audio devices")
	}

	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %2d  %s\n", marker, d.Index, d.Name)
	}
}
