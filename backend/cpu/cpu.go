// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/diffusion"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend is a diffusion device.
var _ diffusion.Device = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	dev := cpu.New()
//	xt, err := process.QSample(dev, x0, t, noise)
func New() *Backend {
	return internalcpu.New()
}
