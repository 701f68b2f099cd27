// Package nn implements the neural network layers of the denoising U-Net.
//
// This package provides building blocks for constructing networks:
//   - Module interface: Forward and Backward with cached activations
//   - Parameter: Trainable parameters with accumulated gradients
//   - Conv2D, ConvTranspose2D: (transposed) convolutions
//   - BatchNorm2D: batch normalization with running statistics
//   - ReLU, MaxPool2D: activation and pooling
//   - Sequential: Container for stacking layers
//   - MSELoss: mean squared error
//
// Every layer caches what its Backward needs during Forward. A module must
// therefore see exactly one Backward per Forward, in reverse order.
package nn

import (
	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	block := nn.NewSequential(
//	    nn.NewConv2D(1, 64, 3, 1, 1, true, backend, rng),
//	    nn.NewBatchNorm2D(64, backend),
//	    nn.NewReLU(backend),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Backward takes the gradient w.r.t. the last Forward output,
	// accumulates parameter gradients and returns the gradient w.r.t.
	// that Forward's input.
	Backward(gradOutput *tensor.Tensor) *tensor.Tensor

	// Parameters returns all trainable parameters of this module.
	//
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation functions).
	Parameters() []*Parameter
}

// Trainable is implemented by modules whose Forward differs between
// training and evaluation (BatchNorm2D and containers holding one).
type Trainable interface {
	SetTraining(training bool)
}

// Backend is the set of kernels the layers run on.
type Backend interface {
	Conv2D(input, kernel, bias *tensor.Tensor, stride, padding int) *tensor.Tensor
	Conv2DBackward(input, kernel, gradOut *tensor.Tensor, stride, padding int, gradKernel, gradBias *tensor.Tensor) *tensor.Tensor
	ConvTranspose2D(input, kernel, bias *tensor.Tensor, stride, padding int) *tensor.Tensor
	ConvTranspose2DBackward(input, kernel, gradOut *tensor.Tensor, stride, padding int, gradKernel, gradBias *tensor.Tensor) *tensor.Tensor
	BatchNorm2DTrain(input, gamma, beta *tensor.Tensor, eps float32) (*tensor.Tensor, *cpu.BatchNormStats)
	BatchNorm2DInference(input, gamma, beta *tensor.Tensor, runningMean, runningVar []float32, eps float32) *tensor.Tensor
	BatchNorm2DBackward(gradOut, gamma *tensor.Tensor, stats *cpu.BatchNormStats, gradGamma, gradBeta *tensor.Tensor) *tensor.Tensor
	MaxPool2D(input *tensor.Tensor, kernelSize, stride int) (*tensor.Tensor, []int32)
	MaxPool2DBackward(gradOut *tensor.Tensor, indices []int32, inputShape tensor.Shape) *tensor.Tensor
	ReLUInPlace(x *tensor.Tensor)
	ReLUBackward(output, gradOut *tensor.Tensor) *tensor.Tensor
}

var _ Backend = (*cpu.CPUBackend)(nil)
