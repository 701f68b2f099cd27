// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package diffusion provides a denoising diffusion probabilistic model
// (DDPM) for grayscale images.
//
// # Overview
//
// The model has three parts:
//   - Schedule: the linear beta noise schedule and its derived sequences
//   - UNet: the noise-predicting network
//   - Process: forward noising (QSample), the training objective
//     (TrainingStep) and the reverse sampler (Sample)
//
// A Trainer drives the process over a data loader with an optimizer and
// observer callbacks.
//
// # Basic Usage
//
//	import (
//	    "math/rand/v2"
//
//	    "github.com/born-ml/ddpm/backend/cpu"
//	    "github.com/born-ml/ddpm/diffusion"
//	    "github.com/born-ml/ddpm/optim"
//	)
//
//	func main() {
//	    rng := rand.New(rand.NewPCG(1, 2))
//	    dev := cpu.New()
//
//	    net, err := diffusion.NewUNet(diffusion.DefaultUNetConfig(), rng)
//	    process := diffusion.New(diffusion.DefaultSchedule(), net, diffusion.Config{Channels: 1})
//	    opt := optim.NewAdam(net.Parameters(), optim.AdamConfig{})
//
//	    // One training step.
//	    opt.ZeroGrad()
//	    loss, err := process.TrainingStep(dev, images, rng)
//	    opt.Step()
//
//	    // Generate 16 images of 28×28.
//	    samples, err := process.Sample(dev, 28, 16, rng)
//	}
//
// # Reverse Update
//
// For t from T-1 down to 1:
//
//	x = (x - beta_t/sqrt(1-alphas_cumprod[t]) * eps) / sqrt(alpha_t) + sqrt(beta_t) * z
//
// with z ~ N(0, I) for t > 1 and z = 0 at t = 1. The network is still
// evaluated at t = 0, leaving x unchanged.
package diffusion
