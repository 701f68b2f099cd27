// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the float32 NCHW tensors used by the diffusion
// model.
//
// # Overview
//
// A Tensor is a dense, row-major float32 array with a Shape and a Device
// tag. Images are laid out as [batch, channels, height, width].
//
// # Basic Usage
//
//	import (
//	    "math/rand/v2"
//
//	    "github.com/born-ml/ddpm/tensor"
//	)
//
//	func main() {
//	    rng := rand.New(rand.NewPCG(1, 2))
//
//	    x := tensor.Zeros(tensor.Shape{4, 1, 28, 28})
//	    noise := tensor.Randn(x.Shape(), rng)
//	    y, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	}
//
// # Device Support
//
// Tensors are always host-resident. The Device tag records where a tensor
// was placed or produced:
//   - CPU: pure Go kernels
//   - WebGPU: element-wise diffusion kernels and resident schedule buffers (Windows)
//
// # Errors
//
// Shape violations at public entry points are reported as errors wrapping
// ErrShapeMismatch:
//
//	if errors.Is(err, tensor.ErrShapeMismatch) {
//	    // wrong rank, channel count or size
//	}
package tensor
