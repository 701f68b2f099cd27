// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package diffusion

import (
	"math/rand/v2"

	internal "github.com/born-ml/ddpm/internal/diffusion"
	"github.com/born-ml/ddpm/internal/schedule"
	"github.com/born-ml/ddpm/internal/train"
	"github.com/born-ml/ddpm/internal/unet"
)

// Schedule is the linear beta noise schedule.
type Schedule = schedule.Schedule

// ErrInvalidSchedule is returned by NewSchedule for unusable parameters.
var ErrInvalidSchedule = schedule.ErrInvalidSchedule

// NewSchedule creates a schedule with betas evenly spaced from betaStart to
// betaEnd over timesteps steps.
func NewSchedule(timesteps int, betaStart, betaEnd float64) (*Schedule, error) {
	return schedule.New(timesteps, betaStart, betaEnd)
}

// DefaultSchedule returns 1000 steps from 1e-4 to 2e-2.
func DefaultSchedule() *Schedule {
	return schedule.Default()
}

// UNet is the noise-predicting network.
type UNet = unet.UNet

// UNetConfig describes the network shape.
type UNetConfig = unet.Config

// DefaultUNetConfig returns the single-channel 64-128-256-512 network.
func DefaultUNetConfig() UNetConfig {
	return unet.DefaultConfig()
}

// NewUNet builds a network with weights drawn from rng.
func NewUNet(cfg UNetConfig, rng *rand.Rand) (*UNet, error) {
	return unet.New(cfg, rng)
}

// Process couples a schedule with a network.
type Process = internal.Process

// Config holds the image layout produced by Sample.
type Config = internal.Config

// SampleOptions customize Process.SampleWith.
type SampleOptions = internal.SampleOptions

// Network is what a Process needs from its denoiser.
type Network = internal.Network

// Device runs the element-wise diffusion kernels.
type Device = internal.Device

// ErrInvalidArgument is returned for unusable sampling sizes.
var ErrInvalidArgument = internal.ErrInvalidArgument

// New creates a diffusion process.
func New(sched *Schedule, net Network, cfg Config) *Process {
	return internal.New(sched, net, cfg)
}

// Trainer runs the epoch and batch loop.
type Trainer = train.Trainer

// Callback observes training.
type Callback = train.Callback

// BaseCallback provides no-op Callback methods for embedding.
type BaseCallback = train.BaseCallback

// EpochStats summarizes the losses of one epoch.
type EpochStats = train.EpochStats

// SaveCheckpoint writes network weights and metadata as safetensors.
func SaveCheckpoint(path string, net *UNet, meta map[string]string) error {
	return train.SaveCheckpoint(path, net, meta)
}

// LoadCheckpoint restores network weights and returns the file metadata.
func LoadCheckpoint(path string, net *UNet) (map[string]string, error) {
	return train.LoadCheckpoint(path, net)
}
