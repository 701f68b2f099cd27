package nn

import (
	"github.com/born-ml/ddpm/internal/tensor"
)

// Sequential is a container that chains modules together.
//
// Forward runs the modules in order; Backward runs them in reverse.
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward passes input through all modules sequentially.
func (s *Sequential) Forward(input *tensor.Tensor) *tensor.Tensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Backward passes the gradient through all modules in reverse order.
func (s *Sequential) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	grad := gradOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		grad = s.modules[i].Backward(grad)
	}
	return grad
}

// Parameters returns all parameters from all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining propagates the mode to every Trainable child.
func (s *Sequential) SetTraining(training bool) {
	for _, module := range s.modules {
		if t, ok := module.(Trainable); ok {
			t.SetTraining(training)
		}
	}
}

// Modules returns the contained modules.
func (s *Sequential) Modules() []Module {
	return s.modules
}

// Len returns the number of modules.
func (s *Sequential) Len() int {
	return len(s.modules)
}
