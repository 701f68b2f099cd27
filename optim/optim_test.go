package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/nn"
	"github.com/born-ml/ddpm/optim"
	"github.com/born-ml/ddpm/tensor"
)

func TestAdamThroughFacade(t *testing.T) {
	p := nn.NewParameter("w", tensor.Full(tensor.Shape{2}, 1))
	copy(p.Grad().Data(), []float32{1, -1})

	opt := optim.NewAdam([]*nn.Parameter{p}, optim.AdamConfig{})
	assert.InDelta(t, optim.DefaultAdamLR, opt.GetLR(), 1e-6)
	opt.Step()

	// First Adam step moves each weight by lr against the gradient sign.
	assert.InDelta(t, 1-optim.DefaultAdamLR, p.Tensor().Data()[0], 1e-6)
	assert.InDelta(t, 1+optim.DefaultAdamLR, p.Tensor().Data()[1], 1e-6)

	opt.ZeroGrad()
	assert.Equal(t, []float32{0, 0}, p.Grad().Data())
}

func TestNewByName(t *testing.T) {
	p := nn.NewParameter("w", tensor.Zeros(tensor.Shape{1}))
	o, err := optim.New("sgd", []*nn.Parameter{p}, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, o.GetLR(), 1e-6)

	_, err = optim.New("lion", nil, 0.1)
	assert.Error(t, err)
}
