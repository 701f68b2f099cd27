//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/ddpm/internal/tensor"
)

// Backend runs the diffusion kernels on a WebGPU device.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Storage buffers mirroring placed tensors.
	resident   map[*tensor.Tensor]*wgpu.Buffer
	residentMu sync.Mutex
}

// New creates a new WebGPU backend.
// Returns ErrUnavailable if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request adapter: %w", ErrUnavailable, adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request device: %w", ErrUnavailable, deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to get queue", ErrUnavailable)
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		resident:  make(map[*tensor.Tensor]*wgpu.Buffer),
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Release releases all WebGPU resources.
// Must be called when the backend is no longer needed.
func (b *Backend) Release() {
	b.residentMu.Lock()
	for _, buf := range b.resident {
		buf.Release()
	}
	b.resident = nil
	b.residentMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// Place mirrors t into a GPU storage buffer and returns a WebGPU-tagged
// tensor sharing t's host memory. Kernels reuse the buffer whenever the
// placed tensor is passed back in. Placed tensors are treated as read-only.
func (b *Backend) Place(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t.NumElements() == 0 {
		return nil, fmt.Errorf("webgpu: cannot place empty tensor: %w", tensor.ErrShapeMismatch)
	}
	placed := t.OnDevice(tensor.WebGPU)
	buf := b.createBuffer(float32ToBytes(t.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)

	b.residentMu.Lock()
	b.resident[placed] = buf
	b.residentMu.Unlock()

	return placed, nil
}

// inputBuffer returns the resident buffer of a placed tensor, or uploads a
// temporary one. The returned release func is a no-op for resident buffers.
func (b *Backend) inputBuffer(t *tensor.Tensor) (*wgpu.Buffer, func()) {
	b.residentMu.Lock()
	buf, ok := b.resident[t]
	b.residentMu.Unlock()
	if ok {
		return buf, func() {}
	}
	buf = b.createBuffer(float32ToBytes(t.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	return buf, buf.Release
}
