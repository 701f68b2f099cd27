package cpu

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height - kernelSize) / stride + 1
//	out_width = (width - kernelSize) / stride + 1
//
// Trailing rows/columns that do not fill a window are dropped (floor), so a
// 7×7 input pools to 3×3 with a 2×2 window.
//
// The returned indices hold, for every output element, the flat index into
// the input of the selected maximum. MaxPool2DBackward routes gradients
// through them. Pass nil-tolerant callers (inference) can ignore them.
func (cpu *CPUBackend) MaxPool2D(input *tensor.Tensor, kernelSize, stride int) (*tensor.Tensor, []int32) {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]

	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	output := tensor.Zeros(tensor.Shape{N, C, HOut, WOut})
	indices := make([]int32, output.NumElements())
	inputData := input.Data()
	outputData := output.Data()

	parallel.ForBatch(N, C, func(n, c int) {
		// Pre-slice channel plane: eliminates (n*C+c)*H*W bounds check
		channelOffset := (n*C + c) * H * W
		channelData := inputData[channelOffset : channelOffset+H*W]
		outOffset := (n*C + c) * HOut * WOut

		for outH := 0; outH < HOut; outH++ {
			hStart := outH * stride
			for outW := 0; outW < WOut; outW++ {
				wStart := outW * stride

				best := hStart*W + wStart
				maxVal := channelData[best]
				for kh := 0; kh < kernelSize; kh++ {
					rowStart := (hStart + kh) * W
					rowData := channelData[rowStart : rowStart+W]
					for kw := 0; kw < kernelSize; kw++ {
						if val := rowData[wStart+kw]; val > maxVal {
							maxVal = val
							best = rowStart + wStart + kw
						}
					}
				}

				outputData[outOffset+outH*WOut+outW] = maxVal
				//nolint:gosec // G115: tensor sizes fit in int32
				indices[outOffset+outH*WOut+outW] = int32(channelOffset + best)
			}
		}
	}, cpu.cfg)

	return output, indices
}

// MaxPool2DBackward routes gradOut to the input positions recorded by
// MaxPool2D. Every other input position receives zero gradient.
func (cpu *CPUBackend) MaxPool2DBackward(gradOut *tensor.Tensor, indices []int32, inputShape tensor.Shape) *tensor.Tensor {
	if len(indices) != gradOut.NumElements() {
		panic(fmt.Sprintf("maxpool2d backward: %d indices for %d gradients", len(indices), gradOut.NumElements()))
	}
	gradInput := tensor.Zeros(inputShape)
	gradInputData := gradInput.Data()
	for i, g := range gradOut.Data() {
		gradInputData[indices[i]] += g
	}
	return gradInput
}
