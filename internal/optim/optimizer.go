// Package optim implements optimization algorithms for training the
// denoising network.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers read the gradients accumulated on nn.Parameter by the
// backward pass.
//
// Example usage:
//
//	optimizer := optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: 2e-4})
//
//	for _, batch := range batches {
//	    optimizer.ZeroGrad()
//	    loss, err := process.TrainingStep(dev, batch.Images, rng)
//	    optimizer.Step()
//	}
package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/ddpm/internal/nn"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the accumulated gradients to all parameters in place.
	Step()

	// ZeroGrad clears all parameter gradients.
	//
	// This should be called before each backward pass to prevent
	// gradient accumulation from previous iterations.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// New creates an optimizer by name ("adam" or "sgd").
func New(name string, params []*nn.Parameter, lr float32) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "adam", "":
		return NewAdam(params, AdamConfig{LR: lr}), nil
	case "sgd":
		return NewSGD(params, SGDConfig{LR: lr, Momentum: 0.9}), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", name)
	}
}

func zeroGrads(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
