package cpu

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

// QSample computes sqrtAC[t[b]]*x0 + sqrtOneMinusAC[t[b]]*noise for every
// batch element b. sqrtAC and sqrtOneMinusAC are the 1-D schedule sequences
// sqrt(alphas_cumprod) and sqrt(1-alphas_cumprod). The result is a new
// tensor on the CPU.
func (cpu *CPUBackend) QSample(x0, noise, sqrtAC, sqrtOneMinusAC *tensor.Tensor, t []int) (*tensor.Tensor, error) {
	if err := checkQSample(x0, noise, sqrtAC, sqrtOneMinusAC, t); err != nil {
		return nil, err
	}

	out := tensor.ZerosLike(x0)
	batch := x0.Dim(0)
	per := x0.NumElements() / batch
	x, n, y := x0.Data(), noise.Data(), out.Data()
	a, s := sqrtAC.Data(), sqrtOneMinusAC.Data()

	parallel.For(batch, func(b int) {
		ab, sb := a[t[b]], s[t[b]]
		for i := b * per; i < (b+1)*per; i++ {
			y[i] = ab*x[i] + sb*n[i]
		}
	}, cpu.cfg)

	return out, nil
}

// checkQSample validates QSample arguments: matching x0 and noise shapes,
// two 1-D sequences of equal length, one timestep per batch element, each
// inside the sequences.
func checkQSample(x0, noise, sqrtAC, sqrtOneMinusAC *tensor.Tensor, t []int) error {
	if len(x0.Shape()) == 0 {
		return fmt.Errorf("q_sample: scalar input: %w", tensor.ErrShapeMismatch)
	}
	if !x0.Shape().Equal(noise.Shape()) {
		return fmt.Errorf("q_sample: noise shape %v != x0 shape %v: %w", noise.Shape(), x0.Shape(), tensor.ErrShapeMismatch)
	}
	if len(sqrtAC.Shape()) != 1 || !sqrtAC.Shape().Equal(sqrtOneMinusAC.Shape()) {
		return fmt.Errorf("q_sample: coefficient shapes %v and %v: %w", sqrtAC.Shape(), sqrtOneMinusAC.Shape(), tensor.ErrShapeMismatch)
	}
	if len(t) != x0.Dim(0) {
		return fmt.Errorf("q_sample: %d timesteps for batch %d: %w", len(t), x0.Dim(0), tensor.ErrShapeMismatch)
	}
	steps := sqrtAC.Dim(0)
	for _, step := range t {
		if step < 0 || step >= steps {
			return fmt.Errorf("q_sample: timestep %d out of range [0, %d): %w", step, steps, tensor.ErrShapeMismatch)
		}
	}
	return nil
}

// ReverseStep applies one ancestral sampling update to x in place:
//
//	x = (x - noiseCoef*eps) * invSqrtAlpha + sigma*z
//
// z may be nil, in which case the noise term is dropped.
func (cpu *CPUBackend) ReverseStep(x, eps, z *tensor.Tensor, noiseCoef, invSqrtAlpha, sigma float32) error {
	if !x.Shape().Equal(eps.Shape()) {
		return fmt.Errorf("reverse step: eps shape %v != x shape %v: %w", eps.Shape(), x.Shape(), tensor.ErrShapeMismatch)
	}
	if z != nil && !x.Shape().Equal(z.Shape()) {
		return fmt.Errorf("reverse step: z shape %v != x shape %v: %w", z.Shape(), x.Shape(), tensor.ErrShapeMismatch)
	}

	xs, es := x.Data(), eps.Data()
	var zs []float32
	if z != nil {
		zs = z.Data()
	}

	parallel.Range(len(xs), func(start, end int) {
		for i := start; i < end; i++ {
			v := (xs[i] - noiseCoef*es[i]) * invSqrtAlpha
			if zs != nil {
				v += sigma * zs[i]
			}
			xs[i] = v
		}
	}, cpu.cfg)

	return nil
}
