package tensor_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/tensor"
)

func TestPublicConstructors(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, x.Shape())
	assert.Equal(t, tensor.CPU, x.Device())
	assert.Equal(t, float32(6), x.At(1, 2))

	_, err = tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2})
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))

	z := tensor.Zeros(tensor.Shape{1, 1, 2, 2})
	assert.Equal(t, []float32{0, 0, 0, 0}, z.Data())

	f := tensor.Full(tensor.Shape{3}, 0.5)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, f.Data())

	r := tensor.Randn(tensor.Shape{256}, rand.New(rand.NewPCG(1, 2)))
	assert.True(t, r.AllFinite())
	assert.Equal(t, "WebGPU", tensor.WebGPU.String())
}
