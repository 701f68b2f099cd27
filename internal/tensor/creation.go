package tensor

import "math/rand/v2"

// Zeros creates a CPU tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros(tensor.Shape{3, 4})
func Zeros(shape Shape) *Tensor {
	return New(make([]float32, shape.NumElements()), shape, CPU)
}

// ZerosLike creates a zero tensor with t's shape on t's device.
func ZerosLike(t *Tensor) *Tensor {
	return New(make([]float32, len(t.data)), t.shape, t.device)
}

// Full creates a CPU tensor filled with a specific value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	t.Fill(value)
	return t
}

// Randn creates a CPU tensor with values drawn from N(0, 1).
// Note: Uses math/rand (not crypto/rand) - appropriate for ML/statistical purposes.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	FillRandn(t, rng)
	return t
}

// RandnLike creates a standard-normal tensor with t's shape on t's device.
func RandnLike(t *Tensor, rng *rand.Rand) *Tensor {
	out := ZerosLike(t)
	FillRandn(out, rng)
	return out
}

// FillRandn overwrites t with standard-normal samples.
func FillRandn(t *Tensor, rng *rand.Rand) {
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64())
	}
}
