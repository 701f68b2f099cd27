// Package config holds the run configuration: defaults matching the
// reference training setup, overlaid by an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/ddpm/internal/unet"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config is the full run configuration.
type Config struct {
	Seed     uint64         `yaml:"seed"`
	Device   string         `yaml:"device"` // "cpu" or "webgpu"
	Data     DataConfig     `yaml:"data"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Network  unet.Config    `yaml:"network"`
	Train    TrainConfig    `yaml:"train"`
	Sample   SampleConfig   `yaml:"sample"`
	Output   OutputConfig   `yaml:"output"`
}

// DataConfig selects the training images.
type DataConfig struct {
	Dir        string `yaml:"dir"`         // Directory with MNIST IDX files
	Synthetic  bool   `yaml:"synthetic"`   // Use generated glyphs instead of MNIST
	ImageSize  int    `yaml:"image_size"`  // Synthetic image size
	Samples    int    `yaml:"samples"`     // Synthetic dataset size
	MaxSamples int    `yaml:"max_samples"` // Cap on MNIST images (0 = all)
}

// ScheduleConfig is the linear beta schedule.
type ScheduleConfig struct {
	Timesteps int     `yaml:"timesteps"`
	BetaStart float64 `yaml:"beta_start"`
	BetaEnd   float64 `yaml:"beta_end"`
}

// TrainConfig controls the training loop.
type TrainConfig struct {
	Epochs    int     `yaml:"epochs"`
	BatchSize int     `yaml:"batch_size"`
	LR        float32 `yaml:"lr"`
	Optimizer string  `yaml:"optimizer"` // "adam" or "sgd"
	LogEvery  int     `yaml:"log_every"` // Batch log interval (0 disables)
}

// SampleConfig controls image generation.
type SampleConfig struct {
	Count     int `yaml:"count"`
	ImageSize int `yaml:"image_size"`
	Every     int `yaml:"every"` // Generated grid every n epochs while training (0 disables)
}

// OutputConfig names output locations.
type OutputConfig struct {
	LogDir        string `yaml:"log_dir"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	ImageScale    int    `yaml:"image_scale"`
	KeepAll       bool   `yaml:"keep_all_checkpoints"`
}

// Default returns the reference setup: MNIST from ./data, one epoch of
// batch 64 with Adam at 2e-4, 1000 linear steps from 1e-4 to 2e-2.
func Default() Config {
	return Config{
		Seed:   42,
		Device: "cpu",
		Data: DataConfig{
			Dir:       "data",
			ImageSize: 28,
			Samples:   1024,
		},
		Schedule: ScheduleConfig{
			Timesteps: 1000,
			BetaStart: 1e-4,
			BetaEnd:   2e-2,
		},
		Network: unet.DefaultConfig(),
		Train: TrainConfig{
			Epochs:    1,
			BatchSize: 64,
			LR:        2e-4,
			Optimizer: "adam",
			LogEvery:  50,
		},
		Sample: SampleConfig{
			Count:     16,
			ImageSize: 28,
		},
		Output: OutputConfig{
			LogDir:        "logs",
			CheckpointDir: "checkpoints",
			ImageScale:    4,
		},
	}
}

// Load reads a YAML file over Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: config path is user-chosen
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over Default and validates the result.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks value ranges. Schedule and network shapes are checked
// again by their constructors.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	switch strings.ToLower(c.Device) {
	case "cpu", "webgpu":
	default:
		check(false, "device %q (want cpu or webgpu)", c.Device)
	}
	check(c.Data.Synthetic || c.Data.Dir != "", "data.dir is empty and data.synthetic is off")
	check(!c.Data.Synthetic || c.Data.ImageSize > 0, "data.image_size %d", c.Data.ImageSize)
	check(!c.Data.Synthetic || c.Data.Samples > 0, "data.samples %d", c.Data.Samples)
	check(c.Data.MaxSamples >= 0, "data.max_samples %d", c.Data.MaxSamples)
	check(c.Schedule.Timesteps > 0, "schedule.timesteps %d", c.Schedule.Timesteps)
	check(c.Train.Epochs >= 0, "train.epochs %d", c.Train.Epochs)
	check(c.Train.BatchSize > 0, "train.batch_size %d", c.Train.BatchSize)
	check(c.Train.LR > 0, "train.lr %g", c.Train.LR)
	check(c.Sample.Count > 0, "sample.count %d", c.Sample.Count)
	check(c.Sample.ImageSize > 0, "sample.image_size %d", c.Sample.ImageSize)
	check(c.Sample.Every >= 0, "sample.every %d", c.Sample.Every)
	if err := c.Network.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: network: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}
