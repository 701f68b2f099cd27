// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU device for the diffusion kernels.
//
// Schedule coefficients are mirrored into resident GPU storage buffers and
// the q_sample and reverse-step updates run as WGSL compute shaders. The
// network itself stays on the CPU kernels. The device is available on
// Windows; elsewhere New returns ErrUnavailable.
//
// Example:
//
//	import (
//	    "github.com/born-ml/ddpm/backend/webgpu"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    images, err := process.Sample(gpu, 28, 16, rng)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/ddpm/internal/backend/webgpu"
	"github.com/born-ml/ddpm/internal/diffusion"
)

// Backend represents the WebGPU device.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend is a diffusion device.
var _ diffusion.Device = (*Backend)(nil)

// ErrUnavailable is returned by New when no WebGPU adapter can be used.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New creates a new WebGPU backend.
//
// Call Release() when done to free GPU resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
