package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/tensor"
)

// Conv2D implements a 2D convolutional layer.
//
// Applies 2D convolution over an input signal composed of several input planes.
//
// Input shape:  [batch, in_channels, height, width]
// Output shape: [batch, out_channels, out_height, out_width]
//
// Where:
//
//	out_height = (height + 2*padding - kernel_size) / stride + 1
//	out_width = (width + 2*padding - kernel_size) / stride + 1
//
// Parameters:
//   - weight: [out_channels, in_channels, kernel_size, kernel_size]
//   - bias: [out_channels] (optional)
//
// Example:
//
//	// 3x3 convolution, 1 input channel, 64 output channels, "same" padding
//	conv := nn.NewConv2D(1, 64, 3, 1, 1, true, backend, rng)
//	output := conv.Forward(input) // [N, 1, 28, 28] -> [N, 64, 28, 28]
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *Parameter
	bias   *Parameter // nil if useBias is false

	backend Backend
	input   *tensor.Tensor // cached for Backward
}

// NewConv2D creates a new Conv2D layer with Kaiming-uniform initialization.
func NewConv2D(
	inChannels, outChannels, kernelSize, stride, padding int,
	useBias bool,
	backend Backend,
	rng *rand.Rand,
) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid configuration in=%d out=%d k=%d stride=%d pad=%d",
			inChannels, outChannels, kernelSize, stride, padding))
	}

	fanIn := inChannels * kernelSize * kernelSize
	conv := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight: NewParameter("weight",
			KaimingUniform(fanIn, tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, rng)),
		backend: backend,
	}
	if useBias {
		conv.bias = NewParameter("bias", KaimingUniform(fanIn, tensor.Shape{outChannels}, rng))
	}
	return conv
}

// Forward computes the convolution and caches the input.
func (c *Conv2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	c.input = input
	return c.backend.Conv2D(input, c.weight.Tensor(), c.biasTensor(), c.stride, c.padding)
}

// Backward accumulates weight and bias gradients and returns the input gradient.
func (c *Conv2D) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if c.input == nil {
		panic("conv2d: Backward called before Forward")
	}
	var gradBias *tensor.Tensor
	if c.bias != nil {
		gradBias = c.bias.Grad()
	}
	gradInput := c.backend.Conv2DBackward(c.input, c.weight.Tensor(), gradOutput, c.stride, c.padding, c.weight.Grad(), gradBias)
	c.input = nil
	return gradInput
}

// Parameters returns weight and, if present, bias.
func (c *Conv2D) Parameters() []*Parameter {
	if c.bias != nil {
		return []*Parameter{c.weight, c.bias}
	}
	return []*Parameter{c.weight}
}

// Weight returns the weight parameter.
func (c *Conv2D) Weight() *Parameter { return c.weight }

// Bias returns the bias parameter, or nil.
func (c *Conv2D) Bias() *Parameter { return c.bias }

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChannels }

func (c *Conv2D) biasTensor() *tensor.Tensor {
	if c.bias == nil {
		return nil
	}
	return c.bias.Tensor()
}
