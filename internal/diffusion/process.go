// Package diffusion implements the DDPM forward (noising) and reverse
// (sampling) processes around a noise-predicting network.
package diffusion

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"

	"github.com/born-ml/ddpm/internal/nn"
	"github.com/born-ml/ddpm/internal/schedule"
	"github.com/born-ml/ddpm/internal/tensor"
)

// ErrInvalidArgument is returned for unusable sampling sizes.
var ErrInvalidArgument = errors.New("diffusion: invalid argument")

// Network predicts the noise contained in a batch of images. The output has
// the shape of the input.
type Network interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Backward(gradOutput *tensor.Tensor) *tensor.Tensor
	SetTraining(training bool)
	Training() bool
}

// Config holds the image layout produced by Sample.
type Config struct {
	Channels int
}

// Process couples a noise schedule with a denoising network.
type Process struct {
	sched *schedule.Schedule
	net   Network
	cfg   Config
	loss  *nn.MSELoss
}

// New creates a diffusion process. A zero Channels defaults to 1.
func New(sched *schedule.Schedule, net Network, cfg Config) *Process {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Process{
		sched: sched,
		net:   net,
		cfg:   cfg,
		loss:  nn.NewMSELoss(),
	}
}

// Schedule returns the noise schedule.
func (p *Process) Schedule() *schedule.Schedule { return p.sched }

// Network returns the denoising network.
func (p *Process) Network() Network { return p.net }

// Timesteps returns T.
func (p *Process) Timesteps() int { return p.sched.Timesteps() }

// QSample draws x_t from q(x_t | x_0) for the given noise:
//
//	x_t = sqrt(alphas_cumprod[t]) * x0 + sqrt(1 - alphas_cumprod[t]) * noise
//
// with one timestep per batch element.
func (p *Process) QSample(dev Device, x0 *tensor.Tensor, t []int, noise *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x0.Shape()) == 0 {
		return nil, fmt.Errorf("diffusion: q_sample on scalar: %w", tensor.ErrShapeMismatch)
	}
	if len(t) != x0.Dim(0) {
		return nil, fmt.Errorf("diffusion: %d timesteps for batch of %d: %w", len(t), x0.Dim(0), tensor.ErrShapeMismatch)
	}
	if !noise.Shape().Equal(x0.Shape()) {
		return nil, fmt.Errorf("diffusion: noise shape %v != x0 shape %v: %w", noise.Shape(), x0.Shape(), tensor.ErrShapeMismatch)
	}

	coef, err := p.sched.On(dev)
	if err != nil {
		return nil, err
	}
	if err := coef.CheckTimesteps(t); err != nil {
		return nil, fmt.Errorf("diffusion: %w", err)
	}
	return dev.QSample(x0, noise, coef.SqrtAlphasCumprod, coef.SqrtOneMinusAlphasCumprod, t)
}

// TrainingStep runs one denoising-objective step on a batch: uniform
// timesteps, standard normal noise, MSE between predicted and true noise.
// Parameter gradients are accumulated, ready for an optimizer step.
func (p *Process) TrainingStep(dev Device, images *tensor.Tensor, rng *rand.Rand) (float32, error) {
	if _, _, _, _, err := images.Shape().NCHW(); err != nil {
		return 0, fmt.Errorf("diffusion: training batch: %w", err)
	}

	noise := tensor.RandnLike(images, rng)
	xt, err := p.QSample(dev, images, p.randomTimesteps(images.Dim(0), rng), noise)
	if err != nil {
		return 0, err
	}

	predicted, err := p.net.Forward(xt)
	if err != nil {
		return 0, err
	}
	loss, err := p.loss.Forward(predicted, noise)
	if err != nil {
		return 0, err
	}
	p.net.Backward(p.loss.Backward(predicted.Shape()))

	return loss, nil
}

// SampleOptions customize Sample.
type SampleOptions struct {
	// OnStep, if set, is called after each of the T network evaluations
	// with the timestep just processed (T-1 down to 0).
	OnStep func(t int)
}

// Sample generates batchSize images of imageSize×imageSize by running the
// reverse process from pure noise.
func (p *Process) Sample(dev Device, imageSize, batchSize int, rng *rand.Rand) (*tensor.Tensor, error) {
	return p.SampleWith(dev, imageSize, batchSize, rng, SampleOptions{})
}

// SampleWith is Sample with options. For t = T-1 down to 1:
//
//	x = (x - beta_t/sqrt(1-alphas_cumprod[t]) * eps) / sqrt(alpha_t) + sqrt(beta_t) * z
//
// where eps is the network prediction and z is standard normal noise for
// t > 1 and zero for t == 1. The network is still evaluated at t == 0 but
// x is left unchanged. The network runs in evaluation mode and its previous
// mode is restored on return.
func (p *Process) SampleWith(dev Device, imageSize, batchSize int, rng *rand.Rand, opts SampleOptions) (*tensor.Tensor, error) {
	if imageSize <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("%w: image size %d, batch size %d", ErrInvalidArgument, imageSize, batchSize)
	}

	wasTraining := p.net.Training()
	p.net.SetTraining(false)
	defer p.net.SetTraining(wasTraining)

	shape := tensor.Shape{batchSize, p.cfg.Channels, imageSize, imageSize}
	x := tensor.Randn(shape, rng)
	z := tensor.Zeros(shape)

	for t := p.sched.Timesteps() - 1; t >= 0; t-- {
		eps, err := p.net.Forward(x)
		if err != nil {
			return nil, err
		}

		if t > 0 {
			beta := p.sched.Beta(t)
			noiseCoef := beta / p.sched.SqrtOneMinusAlphaCumprod(t)
			invSqrtAlpha := 1 / math32.Sqrt(p.sched.Alpha(t))

			var noise *tensor.Tensor
			if t > 1 {
				tensor.FillRandn(z, rng)
				noise = z
			}
			if err := dev.ReverseStep(x, eps, noise, noiseCoef, invSqrtAlpha, math32.Sqrt(beta)); err != nil {
				return nil, err
			}
		}

		if opts.OnStep != nil {
			opts.OnStep(t)
		}
	}

	return x.OnDevice(dev.Device()), nil
}

// Denoise noises images at random timesteps and runs the network on the
// result. Returns the noisy images and the network output; used for
// epoch-end visualization. Gradients are not touched.
func (p *Process) Denoise(dev Device, images *tensor.Tensor, rng *rand.Rand) (noisy, predicted *tensor.Tensor, err error) {
	if _, _, _, _, err := images.Shape().NCHW(); err != nil {
		return nil, nil, fmt.Errorf("diffusion: denoise batch: %w", err)
	}

	noise := tensor.RandnLike(images, rng)
	noisy, err = p.QSample(dev, images, p.randomTimesteps(images.Dim(0), rng), noise)
	if err != nil {
		return nil, nil, err
	}

	wasTraining := p.net.Training()
	p.net.SetTraining(false)
	defer p.net.SetTraining(wasTraining)

	predicted, err = p.net.Forward(noisy)
	if err != nil {
		return nil, nil, err
	}
	return noisy, predicted, nil
}

func (p *Process) randomTimesteps(n int, rng *rand.Rand) []int {
	t := make([]int, n)
	for i := range t {
		t[i] = rng.IntN(p.sched.Timesteps())
	}
	return t
}
