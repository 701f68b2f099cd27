// Package tensor provides the float32 NCHW tensor used throughout the
// diffusion model: the image batches, the network activations and weights,
// and the materialized noise-schedule coefficients.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense, row-major float32 tensor.
//
// Host memory always holds the values. Device records where the tensor is
// resident for computation; accelerator backends keep a device-side copy
// keyed by the tensor and tag their results with their own device, the same
// way CPU results are tagged CPU.
type Tensor struct {
	shape  Shape
	data   []float32
	device Device
}

// New wraps data in a tensor without copying.
// Panics if len(data) does not match the shape.
func New(data []float32, shape Shape, device Device) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor: invalid shape: %v", err))
	}
	if shape.NumElements() != len(data) {
		panic(fmt.Sprintf("tensor: shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data)))
	}
	return &Tensor{
		shape:  shape.Clone(),
		data:   data,
		device: device,
	}
}

// FromSlice creates a CPU tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d",
			ErrShapeMismatch, shape, shape.NumElements(), len(data))
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	return New(buf, shape, CPU), nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Device returns the tensor's compute device.
func (t *Tensor) Device() Device {
	return t.device
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying slice (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Sample returns the contiguous slice holding element i of the leading
// (batch) dimension.
func (t *Tensor) Sample(i int) []float32 {
	per := len(t.data) / t.shape[0]
	return t.data[i*per : (i+1)*per]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	strides := t.shape.ComputeStrides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * strides[i]
	}
	return offset
}

// Clone creates a deep copy of the tensor on the same device.
func (t *Tensor) Clone() *Tensor {
	buf := make([]float32, len(t.data))
	copy(buf, t.data)
	return &Tensor{shape: t.shape.Clone(), data: buf, device: t.device}
}

// OnDevice returns a tensor sharing t's memory tagged with device d.
func (t *Tensor) OnDevice(d Device) *Tensor {
	return &Tensor{shape: t.shape, data: t.data, device: d}
}

// Reshape returns a view of the tensor with a new shape.
// Panics if the element count changes.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	return New(t.data, Shape(shape), t.device)
}

// CopyFrom copies src's values into t. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) {
	if !t.shape.Equal(src.shape) {
		panic(fmt.Sprintf("tensor: copy from %v into %v", src.shape, t.shape))
	}
	copy(t.data, src.data)
}

// Fill sets every element to value.
func (t *Tensor) Fill(value float32) {
	for i := range t.data {
		t.data[i] = value
	}
}

// AllFinite reports whether the tensor has no NaN or Inf values.
func (t *Tensor) AllFinite() bool {
	for _, v := range t.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float32]%v on %s", t.shape, t.device)
}
