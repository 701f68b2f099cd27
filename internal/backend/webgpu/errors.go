// Package webgpu implements the WebGPU device for the diffusion kernels.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Host memory stays authoritative for every tensor: Place mirrors a tensor
// into a GPU storage buffer, and the q_sample and reverse-step kernels run
// on the GPU and read their results back. The device is available on
// windows builds only; elsewhere New returns ErrUnavailable.
package webgpu

import "errors"

// ErrUnavailable is returned by New when no WebGPU device can be created.
var ErrUnavailable = errors.New("webgpu: device unavailable")
