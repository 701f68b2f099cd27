//go:build !windows

package webgpu

import (
	"github.com/born-ml/ddpm/internal/tensor"
)

// Backend is the WebGPU device. It cannot be constructed on this platform.
type Backend struct{}

// New always fails on this platform.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports whether WebGPU is available on this system.
func IsAvailable() bool {
	return false
}

// Name returns the backend name.
func (b *Backend) Name() string { return "WebGPU" }

// Device returns the compute device.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// Place always fails on this platform.
func (b *Backend) Place(*tensor.Tensor) (*tensor.Tensor, error) { return nil, ErrUnavailable }

// QSample always fails on this platform.
func (b *Backend) QSample(_, _, _, _ *tensor.Tensor, _ []int) (*tensor.Tensor, error) {
	return nil, ErrUnavailable
}

// ReverseStep always fails on this platform.
func (b *Backend) ReverseStep(_, _, _ *tensor.Tensor, _, _, _ float32) error {
	return ErrUnavailable
}

// Release is a no-op on this platform.
func (b *Backend) Release() {}
