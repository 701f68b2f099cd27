// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/tensor"
)

// Tensor is a dense float32 array with a shape and device tag.
type Tensor = tensor.Tensor

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Device represents a compute device.
type Device = tensor.Device

// Placer moves tensors onto a compute device.
type Placer = tensor.Placer

// Supported devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// ErrShapeMismatch is wrapped by errors about incompatible shapes.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// FromSlice creates a CPU tensor holding a copy of data.
//
// Example:
//
//	t, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// Zeros creates a zero-filled CPU tensor.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a CPU tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	return tensor.Full(shape, value)
}

// Randn creates a CPU tensor of standard normal samples drawn from rng.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.Randn(shape, rng)
}
