package nn

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/tensor"
)

// MSELoss computes the mean squared error between predictions and targets.
//
//	loss = mean((prediction - target)^2)
//
// Forward caches the difference so Backward can return
// d loss / d prediction = 2 * (prediction - target) / N.
type MSELoss struct {
	diff []float32
}

// NewMSELoss creates a mean squared error loss.
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward returns the mean squared error.
// Shapes must match exactly; there is no broadcasting.
func (l *MSELoss) Forward(prediction, target *tensor.Tensor) (float32, error) {
	if !prediction.Shape().Equal(target.Shape()) {
		return 0, fmt.Errorf("mse: prediction shape %v != target shape %v: %w",
			prediction.Shape(), target.Shape(), tensor.ErrShapeMismatch)
	}
	p, t := prediction.Data(), target.Data()
	if len(p) == 0 {
		return 0, fmt.Errorf("mse: empty input: %w", tensor.ErrShapeMismatch)
	}

	l.diff = make([]float32, len(p))
	var sum float64
	for i := range p {
		d := p[i] - t[i]
		l.diff[i] = d
		sum += float64(d) * float64(d)
	}
	return float32(sum / float64(len(p))), nil
}

// Backward returns the gradient of the last Forward w.r.t. prediction.
func (l *MSELoss) Backward(shape tensor.Shape) *tensor.Tensor {
	if l.diff == nil {
		panic("mse: Backward called before Forward")
	}
	grad := tensor.Zeros(shape)
	scale := 2 / float32(len(l.diff))
	g := grad.Data()
	for i, d := range l.diff {
		g[i] = scale * d
	}
	l.diff = nil
	return grad
}
