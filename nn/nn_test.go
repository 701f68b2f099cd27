package nn_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/backend/cpu"
	"github.com/born-ml/ddpm/nn"
	"github.com/born-ml/ddpm/tensor"
)

func TestSequentialBlock(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewPCG(1, 2))

	block := nn.NewSequential(
		nn.NewConv2D(1, 4, 3, 1, 1, false, backend, rng),
		nn.NewBatchNorm2D(4, backend),
		nn.NewReLU(backend),
		nn.NewMaxPool2D(2, 2, backend),
	)
	x := tensor.Randn(tensor.Shape{2, 1, 8, 8}, rng)

	y := block.Forward(x)
	assert.Equal(t, tensor.Shape{2, 4, 4, 4}, y.Shape())

	gradX := block.Backward(tensor.Full(y.Shape(), 1))
	assert.Equal(t, x.Shape(), gradX.Shape())
	assert.Len(t, block.Parameters(), 3) // conv weight, bn weight and bias
}

func TestMSELoss(t *testing.T) {
	pred := tensor.Full(tensor.Shape{1, 1, 2, 2}, 1)
	target := tensor.Zeros(tensor.Shape{1, 1, 2, 2})

	loss, err := nn.NewMSELoss().Forward(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, loss, 1e-7)
}
