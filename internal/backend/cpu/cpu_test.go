package cpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func seq(shape tensor.Shape) *tensor.Tensor {
	t := tensor.Zeros(shape)
	for i := range t.Data() {
		t.Data()[i] = float32(i + 1)
	}
	return t
}

// dot is the scalar loss used by the gradient checks: L = sum(out * r).
func dot(a, b *tensor.Tensor) float64 {
	var s float64
	for i, v := range a.Data() {
		s += float64(v) * float64(b.Data()[i])
	}
	return s
}

// numericGrad perturbs every element of x and measures the change of f.
func numericGrad(x *tensor.Tensor, h float32, f func() float64) []float32 {
	grad := make([]float32, x.NumElements())
	data := x.Data()
	for i := range data {
		orig := data[i]
		data[i] = orig + h
		plus := f()
		data[i] = orig - h
		minus := f()
		data[i] = orig
		grad[i] = float32((plus - minus) / (2 * float64(h)))
	}
	return grad
}

func assertGradClose(t *testing.T, want, got []float32, tol float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], float64(tol*(1+abs32(want[i]))), "grad[%d]", i)
	}
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func TestConv2D_ForwardValues(t *testing.T) {
	backend := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := seq(tensor.Shape{1, 1, 3, 3})
	kernel, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	out := backend.Conv2D(input, kernel, nil, 1, 0)

	require.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{37, 47, 67, 77}, out.Data())
}

func TestConv2D_PaddingAndBias(t *testing.T) {
	backend := New()
	input := tensor.Full(tensor.Shape{2, 1, 4, 4}, 1)
	kernel := tensor.Full(tensor.Shape{3, 1, 3, 3}, 1)
	bias, err := tensor.FromSlice([]float32{0, 1, -1}, tensor.Shape{3})
	require.NoError(t, err)

	out := backend.Conv2D(input, kernel, bias, 1, 1)

	require.Equal(t, tensor.Shape{2, 3, 4, 4}, out.Shape())
	// Corner sees a 2x2 window, edge 2x3, interior 3x3.
	assert.InDelta(t, 4, out.At(0, 0, 0, 0), 1e-6)
	assert.InDelta(t, 7, out.At(0, 1, 0, 1), 1e-6)
	assert.InDelta(t, 8, out.At(1, 2, 1, 1), 1e-6)
}

func TestConv2D_Backward(t *testing.T) {
	backend := New()
	rng := newRNG()

	input := tensor.Randn(tensor.Shape{2, 2, 5, 5}, rng)
	kernel := tensor.Randn(tensor.Shape{3, 2, 3, 3}, rng)
	bias := tensor.Randn(tensor.Shape{3}, rng)
	weights := tensor.Randn(tensor.Shape{2, 3, 5, 5}, rng)

	loss := func() float64 { return dot(backend.Conv2D(input, kernel, bias, 1, 1), weights) }

	gradKernel := tensor.ZerosLike(kernel)
	gradBias := tensor.ZerosLike(bias)
	gradInput := backend.Conv2DBackward(input, kernel, weights, 1, 1, gradKernel, gradBias)

	assertGradClose(t, numericGrad(input, 1e-2, loss), gradInput.Data(), 1e-2)
	assertGradClose(t, numericGrad(kernel, 1e-2, loss), gradKernel.Data(), 1e-2)
	assertGradClose(t, numericGrad(bias, 1e-2, loss), gradBias.Data(), 1e-2)
}

func TestConvTranspose2D_Shape(t *testing.T) {
	backend := New()
	input := tensor.Full(tensor.Shape{1, 4, 3, 3}, 1)
	kernel := tensor.Full(tensor.Shape{4, 2, 2, 2}, 0.5)

	out := backend.ConvTranspose2D(input, kernel, nil, 2, 0)

	require.Equal(t, tensor.Shape{1, 2, 6, 6}, out.Shape())
	// Stride equals kernel: every output pixel receives exactly one tap per input channel.
	for _, v := range out.Data() {
		assert.InDelta(t, 2, v, 1e-6)
	}
}

func TestConvTranspose2D_Backward(t *testing.T) {
	backend := New()
	rng := newRNG()

	input := tensor.Randn(tensor.Shape{2, 3, 3, 3}, rng)
	kernel := tensor.Randn(tensor.Shape{3, 2, 2, 2}, rng)
	bias := tensor.Randn(tensor.Shape{2}, rng)
	weights := tensor.Randn(tensor.Shape{2, 2, 6, 6}, rng)

	loss := func() float64 { return dot(backend.ConvTranspose2D(input, kernel, bias, 2, 0), weights) }

	gradKernel := tensor.ZerosLike(kernel)
	gradBias := tensor.ZerosLike(bias)
	gradInput := backend.ConvTranspose2DBackward(input, kernel, weights, 2, 0, gradKernel, gradBias)

	assertGradClose(t, numericGrad(input, 1e-2, loss), gradInput.Data(), 1e-2)
	assertGradClose(t, numericGrad(kernel, 1e-2, loss), gradKernel.Data(), 1e-2)
	assertGradClose(t, numericGrad(bias, 1e-2, loss), gradBias.Data(), 1e-2)
}

func TestMaxPool2D_FloorsOddSizes(t *testing.T) {
	backend := New()
	input := seq(tensor.Shape{1, 1, 5, 5})

	out, indices := backend.MaxPool2D(input, 2, 2)

	require.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{7, 9, 17, 19}, out.Data())
	assert.Equal(t, []int32{6, 8, 16, 18}, indices)
}

func TestMaxPool2D_Backward(t *testing.T) {
	backend := New()
	input := seq(tensor.Shape{1, 1, 4, 4})

	_, indices := backend.MaxPool2D(input, 2, 2)
	gradOut, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	grad := backend.MaxPool2DBackward(gradOut, indices, input.Shape())

	want := make([]float32, 16)
	want[5], want[7], want[13], want[15] = 1, 2, 3, 4
	assert.Equal(t, want, grad.Data())
}

func TestBatchNorm2D_TrainNormalizes(t *testing.T) {
	backend := New()
	rng := newRNG()
	input := tensor.Randn(tensor.Shape{4, 2, 3, 3}, rng)
	for i := range input.Data() {
		input.Data()[i] = input.Data()[i]*3 + 5
	}
	gamma := tensor.Full(tensor.Shape{2}, 1)
	beta := tensor.Zeros(tensor.Shape{2})

	out, stats := backend.BatchNorm2DTrain(input, gamma, beta, 1e-5)

	for c := 0; c < 2; c++ {
		var sum, sq float64
		for n := 0; n < 4; n++ {
			for i := 0; i < 9; i++ {
				v := float64(out.At(n, c, i/3, i%3))
				sum += v
				sq += v * v
			}
		}
		assert.InDelta(t, 0, sum/36, 1e-4)
		assert.InDelta(t, 1, sq/36, 1e-3)
		assert.Greater(t, stats.Variance[c], float32(1))
	}
}

func TestBatchNorm2D_Backward(t *testing.T) {
	backend := New()
	rng := newRNG()

	input := tensor.Randn(tensor.Shape{3, 2, 2, 2}, rng)
	gamma := tensor.Randn(tensor.Shape{2}, rng)
	beta := tensor.Randn(tensor.Shape{2}, rng)
	weights := tensor.Randn(tensor.Shape{3, 2, 2, 2}, rng)

	loss := func() float64 {
		out, _ := backend.BatchNorm2DTrain(input, gamma, beta, 1e-5)
		return dot(out, weights)
	}

	_, stats := backend.BatchNorm2DTrain(input, gamma, beta, 1e-5)
	gradGamma := tensor.ZerosLike(gamma)
	gradBeta := tensor.ZerosLike(beta)
	gradInput := backend.BatchNorm2DBackward(weights, gamma, stats, gradGamma, gradBeta)

	assertGradClose(t, numericGrad(input, 1e-2, loss), gradInput.Data(), 3e-2)
	assertGradClose(t, numericGrad(gamma, 1e-2, loss), gradGamma.Data(), 1e-2)
	assertGradClose(t, numericGrad(beta, 1e-2, loss), gradBeta.Data(), 1e-2)
}

func TestBatchNorm2D_Inference(t *testing.T) {
	backend := New()
	input := tensor.Full(tensor.Shape{1, 1, 2, 2}, 3)
	gamma := tensor.Full(tensor.Shape{1}, 2)
	beta := tensor.Full(tensor.Shape{1}, 1)

	out := backend.BatchNorm2DInference(input, gamma, beta, []float32{1}, []float32{4}, 0)

	// 2 * (3 - 1) / 2 + 1
	for _, v := range out.Data() {
		assert.InDelta(t, 3, v, 1e-6)
	}
}

func TestReLU(t *testing.T) {
	backend := New()
	x, err := tensor.FromSlice([]float32{-1, 0, 2, -3}, tensor.Shape{4})
	require.NoError(t, err)

	backend.ReLUInPlace(x)
	assert.Equal(t, []float32{0, 0, 2, 0}, x.Data())

	grad := backend.ReLUBackward(x, tensor.Full(tensor.Shape{4}, 5))
	assert.Equal(t, []float32{0, 0, 5, 0}, grad.Data())
}

func TestPadCropRoundTrip(t *testing.T) {
	backend := New()
	x := seq(tensor.Shape{1, 2, 3, 3})

	padded := backend.PadBottomRight(x, 4, 5)
	require.Equal(t, tensor.Shape{1, 2, 4, 5}, padded.Shape())
	assert.InDelta(t, 0, padded.At(0, 0, 3, 0), 0)
	assert.InDelta(t, 0, padded.At(0, 1, 0, 4), 0)
	assert.InDelta(t, x.At(0, 1, 2, 2), padded.At(0, 1, 2, 2), 0)

	cropped := backend.CropBottomRight(padded, 3, 3)
	assert.Equal(t, x.Data(), cropped.Data())
}

func TestConcatSplitRoundTrip(t *testing.T) {
	backend := New()
	a := seq(tensor.Shape{2, 1, 2, 2})
	b := tensor.Full(tensor.Shape{2, 3, 2, 2}, -1)

	cat := backend.ConcatChannels(a, b)
	require.Equal(t, tensor.Shape{2, 4, 2, 2}, cat.Shape())
	assert.InDelta(t, a.At(1, 0, 1, 1), cat.At(1, 0, 1, 1), 0)
	assert.InDelta(t, -1, cat.At(1, 3, 0, 0), 0)

	first, rest := backend.SplitChannels(cat, 1)
	assert.Equal(t, a.Data(), first.Data())
	assert.Equal(t, b.Data(), rest.Data())
}

func TestQSample(t *testing.T) {
	backend := New()
	x0 := tensor.Full(tensor.Shape{2, 1, 2, 2}, 2)
	noise := tensor.Full(tensor.Shape{2, 1, 2, 2}, 10)
	sqrtAC := seqOf(1, 0.5, 0.25)
	sqrtOneMinusAC := seqOf(0, 0.1, 0.2)

	out, err := backend.QSample(x0, noise, sqrtAC, sqrtOneMinusAC, []int{0, 1})
	require.NoError(t, err)

	assert.InDelta(t, 2, out.At(0, 0, 1, 1), 1e-6)
	assert.InDelta(t, 2, out.At(1, 0, 0, 0), 1e-6)

	// Gathers by timestep, not by batch position.
	out, err = backend.QSample(x0, noise, sqrtAC, sqrtOneMinusAC, []int{2, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, out.At(0, 0, 0, 0), 1e-6)
	assert.InDelta(t, 2, out.At(1, 0, 0, 0), 1e-6)

	_, err = backend.QSample(x0, tensor.Zeros(tensor.Shape{2, 1, 2, 3}), sqrtAC, sqrtOneMinusAC, []int{0, 0})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = backend.QSample(x0, noise, sqrtAC, sqrtOneMinusAC, []int{0})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = backend.QSample(x0, noise, sqrtAC, sqrtOneMinusAC, []int{0, 3})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = backend.QSample(x0, noise, sqrtAC, seqOf(0, 0.1), []int{0, 0})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func seqOf(values ...float32) *tensor.Tensor {
	t, err := tensor.FromSlice(values, tensor.Shape{len(values)})
	if err != nil {
		panic(err)
	}
	return t
}

func TestReverseStep(t *testing.T) {
	backend := New()
	x := tensor.Full(tensor.Shape{1, 1, 2, 2}, 3)
	eps := tensor.Full(tensor.Shape{1, 1, 2, 2}, 1)
	z := tensor.Full(tensor.Shape{1, 1, 2, 2}, 2)

	require.NoError(t, backend.ReverseStep(x, eps, z, 1, 0.5, 0.25))
	// (3 - 1) * 0.5 + 0.25 * 2
	for _, v := range x.Data() {
		assert.InDelta(t, 1.5, v, 1e-6)
	}

	require.NoError(t, backend.ReverseStep(x, eps, nil, 0.5, 2, 100))
	for _, v := range x.Data() {
		assert.InDelta(t, 2, v, 1e-6)
	}

	require.ErrorIs(t, backend.ReverseStep(x, tensor.Zeros(tensor.Shape{4}), nil, 1, 1, 0), tensor.ErrShapeMismatch)
}

func TestReverseStep_BackendConfig(t *testing.T) {
	rng := newRNG()
	x := tensor.Randn(tensor.Shape{4, 1, 16, 16}, rng)
	eps := tensor.RandnLike(x, rng)
	z := tensor.RandnLike(x, rng)

	want := x.Clone()
	for i, v := range want.Data() {
		want.Data()[i] = (v-0.3*eps.Data()[i])*1.1 + 0.2*z.Data()[i]
	}

	for name, cfg := range map[string]parallel.Config{
		"sequential": {Enabled: false},
		"chunked":    {Enabled: true, NumWorkers: 3, MinChunkSize: 7},
	} {
		t.Run(name, func(t *testing.T) {
			got := x.Clone()
			require.NoError(t, NewWithConfig(cfg).ReverseStep(got, eps, z, 0.3, 1.1, 0.2))
			assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-5)
		})
	}
}
