// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/nn"
	"github.com/born-ml/ddpm/internal/tensor"
)

// Module is a layer with a forward and backward pass.
type Module = nn.Module

// Trainable switches between training and evaluation behavior.
type Trainable = nn.Trainable

// Backend is the set of kernels layers run on.
type Backend = nn.Backend

// Parameter is a named trainable tensor with its gradient.
type Parameter = nn.Parameter

// NewParameter wraps t as a parameter with a zero gradient.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Layer types.
type (
	Conv2D          = nn.Conv2D
	ConvTranspose2D = nn.ConvTranspose2D
	BatchNorm2D     = nn.BatchNorm2D
	ReLU            = nn.ReLU
	MaxPool2D       = nn.MaxPool2D
	Sequential      = nn.Sequential
	MSELoss         = nn.MSELoss
)

// NewConv2D creates a 2D convolution with Kaiming-uniform weights.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int, useBias bool, backend Backend, rng *rand.Rand) *Conv2D {
	return nn.NewConv2D(inChannels, outChannels, kernelSize, stride, padding, useBias, backend, rng)
}

// NewConvTranspose2D creates a 2D transposed convolution with bias.
func NewConvTranspose2D(inChannels, outChannels, kernelSize, stride, padding int, backend Backend, rng *rand.Rand) *ConvTranspose2D {
	return nn.NewConvTranspose2D(inChannels, outChannels, kernelSize, stride, padding, backend, rng)
}

// NewBatchNorm2D creates a batch norm layer in training mode.
func NewBatchNorm2D(numFeatures int, backend Backend) *BatchNorm2D {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// NewReLU creates an in-place ReLU.
func NewReLU(backend Backend) *ReLU {
	return nn.NewReLU(backend)
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernelSize, stride int, backend Backend) *MaxPool2D {
	return nn.NewMaxPool2D(kernelSize, stride, backend)
}

// NewSequential chains modules.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// NewMSELoss creates a mean squared error loss.
func NewMSELoss() *MSELoss {
	return nn.NewMSELoss()
}
