package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

// BatchNormStats holds the per-channel batch statistics of a training
// forward pass, kept for the backward pass and running-stat updates.
type BatchNormStats struct {
	Mean     []float32 // Batch mean per channel
	Variance []float32 // Biased batch variance per channel
	InvStd   []float32 // 1 / sqrt(variance + eps)
	Normed   *tensor.Tensor
}

// BatchNorm2DTrain normalizes each channel with its batch statistics.
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// Mean and variance are computed over the batch and spatial dimensions.
// Returns the output and the statistics needed by BatchNorm2DBackward.
func (cpu *CPUBackend) BatchNorm2DTrain(input, gamma, beta *tensor.Tensor, eps float32) (*tensor.Tensor, *BatchNormStats) {
	N, C, H, W := batchNormShape(input, gamma, beta)
	plane := H * W
	count := float32(N * plane)

	output := tensor.ZerosLike(input)
	normed := tensor.ZerosLike(input)
	stats := &BatchNormStats{
		Mean:     make([]float32, C),
		Variance: make([]float32, C),
		InvStd:   make([]float32, C),
		Normed:   normed,
	}

	x := input.Data()
	y := output.Data()
	xhat := normed.Data()
	g, b := gamma.Data(), beta.Data()

	parallel.For(C, func(c int) {
		var sum float32
		for n := 0; n < N; n++ {
			for _, v := range x[(n*C+c)*plane : (n*C+c+1)*plane] {
				sum += v
			}
		}
		mean := sum / count

		var sq float32
		for n := 0; n < N; n++ {
			for _, v := range x[(n*C+c)*plane : (n*C+c+1)*plane] {
				d := v - mean
				sq += d * d
			}
		}
		variance := sq / count
		invStd := 1 / math32.Sqrt(variance+eps)

		for n := 0; n < N; n++ {
			off := (n*C + c) * plane
			for i := off; i < off+plane; i++ {
				xhat[i] = (x[i] - mean) * invStd
				y[i] = g[c]*xhat[i] + b[c]
			}
		}

		stats.Mean[c] = mean
		stats.Variance[c] = variance
		stats.InvStd[c] = invStd
	}, cpu.cfg)

	return output, stats
}

// BatchNorm2DInference normalizes each channel with running statistics.
func (cpu *CPUBackend) BatchNorm2DInference(input, gamma, beta *tensor.Tensor, runningMean, runningVar []float32, eps float32) *tensor.Tensor {
	N, C, H, W := batchNormShape(input, gamma, beta)
	plane := H * W

	output := tensor.ZerosLike(input)
	x := input.Data()
	y := output.Data()
	g, b := gamma.Data(), beta.Data()

	parallel.ForBatch(N, C, func(n, c int) {
		scale := g[c] / math32.Sqrt(runningVar[c]+eps)
		shift := b[c] - runningMean[c]*scale
		off := (n*C + c) * plane
		for i := off; i < off+plane; i++ {
			y[i] = x[i]*scale + shift
		}
	}, cpu.cfg)

	return output
}

// BatchNorm2DBackward computes the input gradient of a training-mode batch
// norm and accumulates gamma and beta gradients.
//
//	dxhat = dy * gamma
//	dx    = invStd / M * (M*dxhat - sum(dxhat) - xhat*sum(dxhat*xhat))
//
// where M = N*H*W and sums run over a channel.
func (cpu *CPUBackend) BatchNorm2DBackward(
	gradOut, gamma *tensor.Tensor,
	stats *BatchNormStats,
	gradGamma, gradBeta *tensor.Tensor,
) *tensor.Tensor {
	shape := gradOut.Shape()
	if !shape.Equal(stats.Normed.Shape()) {
		panic(fmt.Sprintf("batchnorm2d backward: grad shape %v != forward shape %v", shape, stats.Normed.Shape()))
	}
	N, C, plane := shape[0], shape[1], shape[2]*shape[3]
	count := float32(N * plane)

	gradInput := tensor.ZerosLike(gradOut)
	dy := gradOut.Data()
	dx := gradInput.Data()
	xhat := stats.Normed.Data()
	g := gamma.Data()
	dGamma, dBeta := gradGamma.Data(), gradBeta.Data()

	parallel.For(C, func(c int) {
		var sumDy, sumDyXhat float32
		for n := 0; n < N; n++ {
			off := (n*C + c) * plane
			for i := off; i < off+plane; i++ {
				sumDy += dy[i]
				sumDyXhat += dy[i] * xhat[i]
			}
		}
		dGamma[c] += sumDyXhat
		dBeta[c] += sumDy

		k := g[c] * stats.InvStd[c] / count
		for n := 0; n < N; n++ {
			off := (n*C + c) * plane
			for i := off; i < off+plane; i++ {
				dx[i] = k * (count*dy[i] - sumDy - xhat[i]*sumDyXhat)
			}
		}
	}, cpu.cfg)

	return gradInput
}

func batchNormShape(input, gamma, beta *tensor.Tensor) (n, c, h, w int) {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if gamma.NumElements() != shape[1] || beta.NumElements() != shape[1] {
		panic(fmt.Sprintf("batchnorm2d: %d channels but gamma/beta have %d/%d elements",
			shape[1], gamma.NumElements(), beta.NumElements()))
	}
	return shape[0], shape[1], shape[2], shape[3]
}
