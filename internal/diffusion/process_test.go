package diffusion

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/schedule"
	"github.com/born-ml/ddpm/internal/tensor"
	"github.com/born-ml/ddpm/internal/unet"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// constNet predicts a constant noise value and records how it was called.
type constNet struct {
	value    float32
	training bool
	calls    int
	modes    []bool
}

func (n *constNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	n.calls++
	n.modes = append(n.modes, n.training)
	return tensor.Full(x.Shape(), n.value), nil
}

func (n *constNet) Backward(g *tensor.Tensor) *tensor.Tensor { return tensor.ZerosLike(g) }
func (n *constNet) SetTraining(training bool)                { n.training = training }
func (n *constNet) Training() bool                           { return n.training }

func smallUNet(t *testing.T) *unet.UNet {
	t.Helper()
	net, err := unet.New(unet.Config{InChannels: 1, OutChannels: 1, Features: []int{4, 8}}, newRNG(9))
	require.NoError(t, err)
	return net
}

func TestQSample_ZeroNoiseAtFirstStep(t *testing.T) {
	process := New(schedule.Default(), &constNet{}, Config{Channels: 1})
	x0 := tensor.Randn(tensor.Shape{2, 1, 4, 4}, newRNG(1))

	xt, err := process.QSample(cpu.New(), x0, []int{0, 0}, tensor.ZerosLike(x0))
	require.NoError(t, err)

	for i, v := range xt.Data() {
		assert.InDelta(t, x0.Data()[i], v, 1e-3)
	}
}

func TestQSample_PerSampleCoefficients(t *testing.T) {
	sched := schedule.Default()
	process := New(sched, &constNet{}, Config{Channels: 1})
	x0 := tensor.Full(tensor.Shape{2, 1, 2, 2}, 1)
	noise := tensor.Full(tensor.Shape{2, 1, 2, 2}, 1)

	xt, err := process.QSample(cpu.New(), x0, []int{0, 999}, noise)
	require.NoError(t, err)

	a, s := sched.SqrtAlphasCumprod(), sched.SqrtOneMinusAlphasCumprod()
	assert.InDelta(t, a[0]+s[0], xt.At(0, 0, 1, 1), 1e-6)
	assert.InDelta(t, a[999]+s[999], xt.At(1, 0, 0, 0), 1e-6)
}

// recordingDevice captures the coefficient tensors handed to QSample.
type recordingDevice struct {
	*cpu.CPUBackend
	sqrtAC, sqrtOneMinusAC *tensor.Tensor
	t                      []int
}

func (d *recordingDevice) QSample(x0, noise, sqrtAC, sqrtOneMinusAC *tensor.Tensor, t []int) (*tensor.Tensor, error) {
	d.sqrtAC, d.sqrtOneMinusAC, d.t = sqrtAC, sqrtOneMinusAC, t
	return d.CPUBackend.QSample(x0, noise, sqrtAC, sqrtOneMinusAC, t)
}

func TestQSample_UsesPlacedCoefficients(t *testing.T) {
	sched := schedule.Default()
	process := New(sched, &constNet{}, Config{Channels: 1})
	dev := &recordingDevice{CPUBackend: cpu.New()}
	x0 := tensor.Zeros(tensor.Shape{2, 1, 2, 2})

	_, err := process.QSample(dev, x0, []int{3, 7}, tensor.ZerosLike(x0))
	require.NoError(t, err)

	coef, err := sched.On(dev)
	require.NoError(t, err)
	assert.Same(t, coef.SqrtAlphasCumprod, dev.sqrtAC)
	assert.Same(t, coef.SqrtOneMinusAlphasCumprod, dev.sqrtOneMinusAC)
	assert.Equal(t, []int{3, 7}, dev.t)

	// Out-of-range timesteps never reach the device.
	dev.t = nil
	_, err = process.QSample(dev, x0, []int{0, -1}, tensor.ZerosLike(x0))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
	assert.Nil(t, dev.t)
}

func TestQSample_Errors(t *testing.T) {
	process := New(schedule.Default(), &constNet{}, Config{Channels: 1})
	dev := cpu.New()
	x0 := tensor.Zeros(tensor.Shape{2, 1, 4, 4})

	_, err := process.QSample(dev, x0, []int{0}, tensor.ZerosLike(x0))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = process.QSample(dev, x0, []int{0, 1000}, tensor.ZerosLike(x0))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = process.QSample(dev, x0, []int{0, 0}, tensor.Zeros(tensor.Shape{2, 1, 4, 5}))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestTrainingStep_ZerosBatch(t *testing.T) {
	net := smallUNet(t)
	process := New(schedule.Default(), net, Config{Channels: 1})

	loss, err := process.TrainingStep(cpu.New(), tensor.Zeros(tensor.Shape{2, 1, 8, 8}), newRNG(2))
	require.NoError(t, err)

	assert.False(t, math.IsNaN(float64(loss)))
	assert.False(t, math.IsInf(float64(loss), 0))
	assert.GreaterOrEqual(t, loss, float32(0))

	var nonZero bool
	for _, p := range net.Parameters() {
		for _, g := range p.Grad().Data() {
			if g != 0 {
				nonZero = true
			}
		}
	}
	assert.True(t, nonZero, "backward pass should populate gradients")
}

func TestTrainingStep_RejectsBadBatch(t *testing.T) {
	process := New(schedule.Default(), smallUNet(t), Config{Channels: 1})

	_, err := process.TrainingStep(cpu.New(), tensor.Zeros(tensor.Shape{8, 8}), newRNG(2))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = process.TrainingStep(cpu.New(), tensor.Zeros(tensor.Shape{2, 3, 8, 8}), newRNG(2))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestSample_UpdateRule(t *testing.T) {
	sched, err := schedule.New(2, 0.1, 0.2)
	require.NoError(t, err)
	net := &constNet{value: 0.5, training: true}
	process := New(sched, net, Config{Channels: 1})

	var steps []int
	out, err := process.SampleWith(cpu.New(), 3, 2, newRNG(4), SampleOptions{
		OnStep: func(t int) { steps = append(steps, t) },
	})
	require.NoError(t, err)

	// Same seed reproduces x_T; t == 1 adds no noise and t == 0 is a no-op.
	xT := tensor.Randn(tensor.Shape{2, 1, 3, 3}, newRNG(4))
	beta := float64(sched.Beta(1))
	coef := beta / math.Sqrt(1-float64(sched.AlphaCumprod(1)))
	for i, v := range out.Data() {
		want := (float64(xT.Data()[i]) - coef*0.5) / math.Sqrt(float64(sched.Alpha(1)))
		assert.InDelta(t, want, v, 1e-5)
	}

	assert.Equal(t, []int{1, 0}, steps)
	assert.Equal(t, 2, net.calls)
	assert.Equal(t, []bool{false, false}, net.modes)
	assert.True(t, net.Training(), "mode restored")
}

// With T = 3 the chain takes one noisy step (t = 2) and one noiseless step
// (t = 1). Replaying the generator reproduces x_T and z.
func TestSample_ThreeStepChain(t *testing.T) {
	sched, err := schedule.New(3, 0.1, 0.2)
	require.NoError(t, err)
	net := &constNet{value: 0.5}
	process := New(sched, net, Config{Channels: 1})

	var steps []int
	out, err := process.SampleWith(cpu.New(), 2, 2, newRNG(8), SampleOptions{
		OnStep: func(t int) { steps = append(steps, t) },
	})
	require.NoError(t, err)

	shape := tensor.Shape{2, 1, 2, 2}
	replay := newRNG(8)
	xT := tensor.Randn(shape, replay)
	z := tensor.Randn(shape, replay)

	step := func(x float64, t int, z float64) float64 {
		beta := float64(sched.Beta(t))
		coef := beta / math.Sqrt(1-float64(sched.AlphaCumprod(t)))
		return (x-coef*0.5)/math.Sqrt(float64(sched.Alpha(t))) + math.Sqrt(beta)*z
	}
	for i, v := range out.Data() {
		x := step(float64(xT.Data()[i]), 2, float64(z.Data()[i]))
		x = step(x, 1, 0)
		assert.InDelta(t, x, v, 1e-4)
	}

	assert.Equal(t, []int{2, 1, 0}, steps)
	assert.Equal(t, 3, net.calls)
}

func TestSample_InvalidSizes(t *testing.T) {
	process := New(schedule.Default(), &constNet{}, Config{Channels: 1})
	_, err := process.Sample(cpu.New(), 0, 1, newRNG(1))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = process.Sample(cpu.New(), 8, 0, newRNG(1))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSample_FullChain(t *testing.T) {
	if testing.Short() {
		t.Skip("1000 network evaluations")
	}
	net := smallUNet(t)
	process := New(schedule.Default(), net, Config{Channels: 1})

	out, err := process.Sample(cpu.New(), 28, 4, newRNG(5))
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{4, 1, 28, 28}, out.Shape())
	assert.True(t, out.AllFinite())
	assert.True(t, net.Training())
}

func TestDenoise(t *testing.T) {
	net := smallUNet(t)
	process := New(schedule.Default(), net, Config{Channels: 1})
	images := tensor.Randn(tensor.Shape{4, 1, 8, 8}, newRNG(6))

	noisy, predicted, err := process.Denoise(cpu.New(), images, newRNG(7))
	require.NoError(t, err)

	assert.Equal(t, images.Shape(), noisy.Shape())
	assert.Equal(t, images.Shape(), predicted.Shape())
	assert.True(t, net.Training())
}

func TestNewDefaultsChannels(t *testing.T) {
	process := New(schedule.Default(), &constNet{}, Config{})
	out, err := process.Sample(cpu.New(), 2, 1, newRNG(1))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Dim(1))
	assert.Equal(t, 1000, process.Timesteps())
}
