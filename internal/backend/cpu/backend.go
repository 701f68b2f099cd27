// Package cpu implements the CPU backend: convolution, pooling and
// normalization kernels with their backward passes, and the element-wise
// diffusion kernels. Batch and channel loops are split across goroutines
// with internal/parallel; matrix products go through gonum's blas32.
package cpu

import (
	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

// CPUBackend implements tensor kernels on the host.
type CPUBackend struct {
	device tensor.Device
	cfg    parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		cfg:    parallel.KernelConfig(),
	}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		cfg:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Place returns t tagged as CPU-resident. Host memory is authoritative for
// every tensor, so no copy is needed.
func (cpu *CPUBackend) Place(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t.Device() == cpu.device {
		return t, nil
	}
	return t.OnDevice(cpu.device), nil
}
