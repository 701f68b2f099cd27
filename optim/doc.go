// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training the denoising
// network.
//
// # Overview
//
// This package contains:
//   - Adam: Adaptive Moment Estimation with bias correction (DDPM default, lr 2e-4)
//   - SGD: Stochastic Gradient Descent with momentum
//   - Optimizer interface for custom optimizers
//
// Optimizers update parameters from the gradients accumulated by the
// network's backward pass.
//
// # Training Loop Pattern
//
//	optimizer := optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: optim.DefaultAdamLR})
//
//	for batch, ok := loader.Next(); ok; batch, ok = loader.Next() {
//	    // 1. Zero gradients
//	    optimizer.ZeroGrad()
//
//	    // 2. Forward and backward pass
//	    loss, err := process.TrainingStep(dev, batch.Images, rng)
//
//	    // 3. Update parameters
//	    optimizer.Step()
//	}
package optim
