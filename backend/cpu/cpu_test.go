package cpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/backend/cpu"
	"github.com/born-ml/ddpm/tensor"
)

func TestNew(t *testing.T) {
	dev := cpu.New()
	assert.Equal(t, tensor.CPU, dev.Device())

	x := tensor.Full(tensor.Shape{1, 1, 2, 2}, 2)
	noise := tensor.Full(tensor.Shape{1, 1, 2, 2}, 1)
	sqrtAC, err := tensor.FromSlice([]float32{0.9, 0.5}, tensor.Shape{2})
	require.NoError(t, err)
	sqrtOneMinusAC, err := tensor.FromSlice([]float32{0.1, 3}, tensor.Shape{2})
	require.NoError(t, err)

	out, err := dev.QSample(x, noise, sqrtAC, sqrtOneMinusAC, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4, 4, 4}, out.Data())
}
