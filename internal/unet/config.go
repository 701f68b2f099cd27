package unet

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("unet: invalid config")

// Config describes the network shape.
type Config struct {
	InChannels  int   `yaml:"in_channels"`
	OutChannels int   `yaml:"out_channels"`
	Features    []int `yaml:"features"` // Channel width per encoder stage
}

// DefaultConfig returns the single-channel 64-128-256-512 network.
func DefaultConfig() Config {
	return Config{
		InChannels:  1,
		OutChannels: 1,
		Features:    []int{64, 128, 256, 512},
	}
}

// Validate checks channel counts and stage widths.
func (c Config) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("%w: channels must be positive, got in=%d out=%d", ErrInvalidConfig, c.InChannels, c.OutChannels)
	}
	if len(c.Features) == 0 {
		return fmt.Errorf("%w: features must not be empty", ErrInvalidConfig)
	}
	for i, f := range c.Features {
		if f <= 0 {
			return fmt.Errorf("%w: features[%d] = %d", ErrInvalidConfig, i, f)
		}
	}
	return nil
}

// MinSpatialSize returns the smallest height/width that survives every
// pooling stage.
func (c Config) MinSpatialSize() int {
	return 1 << len(c.Features)
}
