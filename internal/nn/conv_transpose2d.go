package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/tensor"
)

// ConvTranspose2D implements a 2D transposed convolution, used for learned
// upsampling.
//
// Input shape:  [batch, in_channels, height, width]
// Output shape: [batch, out_channels, (height-1)*stride - 2*padding + kernel_size, ...]
//
// Parameters:
//   - weight: [in_channels, out_channels, kernel_size, kernel_size]
//   - bias: [out_channels]
type ConvTranspose2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *Parameter
	bias   *Parameter

	backend Backend
	input   *tensor.Tensor
}

// NewConvTranspose2D creates a transposed convolution with bias.
// Initialization uses fan_in = out_channels * kernel_size^2, the layout of
// the weight's second dimension.
func NewConvTranspose2D(inChannels, outChannels, kernelSize, stride, padding int, backend Backend, rng *rand.Rand) *ConvTranspose2D {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid configuration in=%d out=%d k=%d stride=%d pad=%d",
			inChannels, outChannels, kernelSize, stride, padding))
	}

	fanIn := outChannels * kernelSize * kernelSize
	return &ConvTranspose2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight: NewParameter("weight",
			KaimingUniform(fanIn, tensor.Shape{inChannels, outChannels, kernelSize, kernelSize}, rng)),
		bias:    NewParameter("bias", KaimingUniform(fanIn, tensor.Shape{outChannels}, rng)),
		backend: backend,
	}
}

// Forward upsamples the input and caches it.
func (c *ConvTranspose2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	c.input = input
	return c.backend.ConvTranspose2D(input, c.weight.Tensor(), c.bias.Tensor(), c.stride, c.padding)
}

// Backward accumulates weight and bias gradients and returns the input gradient.
func (c *ConvTranspose2D) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if c.input == nil {
		panic("conv_transpose2d: Backward called before Forward")
	}
	gradInput := c.backend.ConvTranspose2DBackward(c.input, c.weight.Tensor(), gradOutput, c.stride, c.padding, c.weight.Grad(), c.bias.Grad())
	c.input = nil
	return gradInput
}

// Parameters returns weight and bias.
func (c *ConvTranspose2D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}
