package nn

import (
	"github.com/born-ml/ddpm/internal/tensor"
)

// MaxPool2D applies 2D max pooling over an input signal.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height - kernel_size) / stride + 1
//	out_width = (width - kernel_size) / stride + 1
//
// Example:
//
//	pool := nn.NewMaxPool2D(2, 2, backend)
//	output := pool.Forward(input) // [N, C, 28, 28] -> [N, C, 14, 14]
type MaxPool2D struct {
	kernelSize int
	stride     int
	backend    Backend

	inputShape tensor.Shape
	indices    []int32
}

// NewMaxPool2D creates a new MaxPool2D layer.
func NewMaxPool2D(kernelSize, stride int, backend Backend) *MaxPool2D {
	return &MaxPool2D{
		kernelSize: kernelSize,
		stride:     stride,
		backend:    backend,
	}
}

// Forward pools the input and records the argmax of each window.
func (m *MaxPool2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	output, indices := m.backend.MaxPool2D(input, m.kernelSize, m.stride)
	m.inputShape = input.Shape().Clone()
	m.indices = indices
	return output
}

// Backward routes the gradient to the recorded maxima.
func (m *MaxPool2D) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if m.indices == nil {
		panic("maxpool2d: Backward called before Forward")
	}
	grad := m.backend.MaxPool2DBackward(gradOutput, m.indices, m.inputShape)
	m.indices = nil
	return grad
}

// Parameters returns nil; pooling has no parameters.
func (m *MaxPool2D) Parameters() []*Parameter {
	return nil
}
