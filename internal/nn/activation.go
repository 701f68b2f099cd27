package nn

import "github.com/born-ml/ddpm/internal/tensor"

// ReLU applies max(0, x) element-wise.
//
// The activation is computed in place on the Forward input, which every
// caller in this module owns exclusively (a fresh conv or batch-norm output).
type ReLU struct {
	backend Backend
	output  *tensor.Tensor
}

// NewReLU creates a ReLU activation.
func NewReLU(backend Backend) *ReLU {
	return &ReLU{backend: backend}
}

// Forward applies ReLU in place and returns the input tensor.
func (r *ReLU) Forward(input *tensor.Tensor) *tensor.Tensor {
	r.backend.ReLUInPlace(input)
	r.output = input
	return input
}

// Backward masks the gradient by the sign of the activation.
func (r *ReLU) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if r.output == nil {
		panic("relu: Backward called before Forward")
	}
	grad := r.backend.ReLUBackward(r.output, gradOutput)
	r.output = nil
	return grad
}

// Parameters returns nil; ReLU has no parameters.
func (r *ReLU) Parameters() []*Parameter {
	return nil
}
