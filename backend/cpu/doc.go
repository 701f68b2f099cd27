// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU device.
//
// # Overview
//
// The CPU backend implements:
//   - Pure Go kernels (no CGO)
//   - Im2col convolution and transposed convolution over a float32 GEMM
//   - Max pooling, batch normalization, ReLU, padding and channel concat
//   - Element-wise q_sample and reverse-step kernels
//   - Batch-parallel execution across goroutines
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/ddpm/backend/cpu"
//	    "github.com/born-ml/ddpm/diffusion"
//	)
//
//	func main() {
//	    dev := cpu.New()
//	    images, err := process.Sample(dev, 28, 16, rng)
//	}
package cpu
