package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/tensor"
)

// KaimingUniform initializes a weight tensor from U(-bound, bound) with
// bound = 1/sqrt(fan_in).
//
// This is Kaiming-uniform with a = sqrt(5), PyTorch's default for
// convolution weights. Biases use the same bound.
func KaimingUniform(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	return Uniform(shape, 1/math.Sqrt(float64(fanIn)), rng)
}

// Uniform creates a tensor with values drawn from U(-bound, bound).
func Uniform(shape tensor.Shape, bound float64, rng *rand.Rand) *tensor.Tensor {
	t := tensor.Zeros(shape)
	data := t.Data()
	for i := range data {
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return t
}
