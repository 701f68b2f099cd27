// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers of the denoising U-Net.
//
// # Overview
//
// Every layer caches what its backward pass needs during Forward; Backward
// takes the gradient of the output, accumulates parameter gradients and
// returns the gradient of the input.
//
// Layers:
//   - Conv2D, ConvTranspose2D: im2col convolutions
//   - BatchNorm2D: batch statistics in training, running statistics in evaluation
//   - ReLU, MaxPool2D
//   - Sequential: runs modules in order
//   - MSELoss: mean squared error with its gradient
//
// # Basic Usage
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewPCG(1, 2))
//
//	block := nn.NewSequential(
//	    nn.NewConv2D(1, 8, 3, 1, 1, false, backend, rng),
//	    nn.NewBatchNorm2D(8, backend),
//	    nn.NewReLU(backend),
//	)
//	y := block.Forward(x)
//	gradX := block.Backward(gradY)
package nn
