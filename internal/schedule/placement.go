package schedule

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/tensor"
)

// Coefficients are the schedule sequences materialized on one device as
// 1-D tensors of length T.
type Coefficients struct {
	Betas                     *tensor.Tensor
	Alphas                    *tensor.Tensor
	AlphasCumprod             *tensor.Tensor
	SqrtAlphasCumprod         *tensor.Tensor
	SqrtOneMinusAlphasCumprod *tensor.Tensor
}

// On returns the coefficients materialized on p's device. The first call
// per device places them; later calls return the cached set. Safe for
// concurrent use.
func (s *Schedule) On(p tensor.Placer) (*Coefficients, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.placed[p.Device()]; ok {
		return c, nil
	}

	c := &Coefficients{}
	for _, seq := range []struct {
		dst  **tensor.Tensor
		data []float32
	}{
		{&c.Betas, s.betas},
		{&c.Alphas, s.alphas},
		{&c.AlphasCumprod, s.alphasCumprod},
		{&c.SqrtAlphasCumprod, s.sqrtAlphasCumprod},
		{&c.SqrtOneMinusAlphasCumprod, s.sqrtOneMinusAlphasCumprod},
	} {
		host, err := tensor.FromSlice(seq.data, tensor.Shape{s.timesteps})
		if err != nil {
			return nil, err
		}
		placed, err := p.Place(host)
		if err != nil {
			return nil, fmt.Errorf("schedule: place on %s: %w", p.Device(), err)
		}
		*seq.dst = placed
	}

	s.placed[p.Device()] = c
	return c, nil
}

// CheckTimesteps reports an error if any step falls outside [0, T).
func (c *Coefficients) CheckTimesteps(t []int) error {
	steps := c.Betas.Dim(0)
	for _, step := range t {
		if step < 0 || step >= steps {
			return fmt.Errorf("schedule: timestep %d out of range [0, %d): %w", step, steps, tensor.ErrShapeMismatch)
		}
	}
	return nil
}
