package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DOA_RECORDER"

type Config struct {
	LogLevel string        `mapstructure:"log_level" json:"log_level"`
	Audio    AudioConfig   `mapstructure:"audio" json:"audio"`
	Device   DeviceConfig  `mapstructure:"device" json:"device"`
	Segment  SegmentConfig `mapstructure:"segment" json:"segment"`
	Queue    QueueConfig   `mapstructure:"queue" json:"queue"`
	Metrics  MetricsConfig `mapstructure:"metrics" json:"metrics"`
}

type AudioConfig struct {
	SampleRate  int    `mapstructure:"sample_rate" json:"sample_rate"`
	Channels    int    `mapstructure:"channels" json:"channels"`
	SampleWidth int    `mapstructure:"sample_width" json:"sample_width"`
	ChunkSize   int    `mapstructure:"chunk_size" json:"chunk_size"`
	DeviceIndex int    `mapstructure:"device_index" json:"device_index"` // -1 = by name or default input
	DeviceName  string `mapstructure:"device_name" json:"device_name"`
}

type DeviceConfig struct {
	VendorID  uint16        `mapstructure:"vendor_id" json:"vendor_id"`
	ProductID uint16        `mapstructure:"product_id" json:"product_id"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
}

type SegmentConfig struct {
	Policy           string        `mapstructure:"policy" json:"policy"` // "fixed" or "adaptive"
	RecordSeconds    float64       `mapstructure:"record_seconds" json:"record_seconds"`
	SilenceThreshold time.Duration `mapstructure:"silence_threshold" json:"silence_threshold"`
	OutputDir        string        `mapstructure:"output_dir" json:"output_dir"`
}

type QueueConfig struct {
	// BoundedCapacity > 0 replaces the unbounded queues with bounded ones
	BoundedCapacity int `mapstructure:"bounded_capacity" json:"bounded_capacity"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address" json:"address"` // empty disables the endpoint
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.sample_width", 2)
	v.SetDefault("audio.chunk_size", 1024)
	v.SetDefault("audio.device_index", -1)
	v.SetDefault("audio.device_name", "")

	v.SetDefault("device.vendor_id", 0x2886)
	v.SetDefault("device.product_id", 0x0018)
	v.SetDefault("device.timeout", 100*time.Second)

	v.SetDefault("segment.policy", "fixed")
	v.SetDefault("segment.record_seconds", 5.0)
	v.SetDefault("segment.silence_threshold", 500*time.Millisecond)
	v.SetDefault("segment.output_dir", ".")

	v.SetDefault("queue.bounded_capacity", 0)

	v.SetDefault("metrics.address", "")
}

// Option adjusts the layered config before it is decoded
type Option func(v *viper.Viper)

// WithOverride sets key (e.g. "segment.policy") above file and environment
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load reads the config file at path, layering DOA_RECORDER_* environment
// variables and then opts on top, and validates the result once. An empty
// path selects the platform default, which may be missing; an explicit path
// must exist.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = ConfigPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for _, opt := range opts {
		opt(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to path as JSON
func (c *Config) Save(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of [debug, info, warn, error], got '%s'", c.LogLevel)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}
	if err := c.Segment.Validate(); err != nil {
		return fmt.Errorf("segment config: %w", err)
	}
	if c.Queue.BoundedCapacity < 0 {
		return fmt.Errorf("queue config: bounded_capacity cannot be negative, got %d", c.Queue.BoundedCapacity)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}
	if a.SampleWidth != 2 {
		return fmt.Errorf("sample_width must be 2 (16-bit), got %d", a.SampleWidth)
	}
	if a.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", a.ChunkSize)
	}
	if a.DeviceIndex < -1 {
		return fmt.Errorf("device_index must be -1 or a device index, got %d", a.DeviceIndex)
	}
	return nil
}

// Validate validates device configuration
func (d *DeviceConfig) Validate() error {
	if d.VendorID == 0 || d.ProductID == 0 {
		return fmt.Errorf("vendor_id and product_id must be set, got %04x:%04x", d.VendorID, d.ProductID)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", d.Timeout)
	}
	return nil
}

// Validate validates segmentation configuration
func (s *SegmentConfig) Validate() error {
	switch s.Policy {
	case "fixed":
		if s.RecordSeconds <= 0 {
			return fmt.Errorf("record_seconds must be positive, got %v", s.RecordSeconds)
		}
	case "adaptive":
		if s.SilenceThreshold <= 0 {
			return fmt.Errorf("silence_threshold must be positive, got %v", s.SilenceThreshold)
		}
	default:
		return fmt.Errorf("policy must be 'fixed' or 'adaptive', got '%s'", s.Policy)
	}

	if s.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}
	return nil
}

// ConfigPath returns the platform-specific config file path
func ConfigPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "doa-recorder", "config.json")
}
