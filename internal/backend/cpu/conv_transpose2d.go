package cpu

import (
	"fmt"
	"sync"

	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

// ConvTranspose2D performs a 2D transposed convolution (fractionally
// strided convolution), the upsampling counterpart of Conv2D.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [in_channels, out_channels, k, k]
// Bias shape:   [out_channels] (may be nil)
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height - 1)*stride - 2*padding + k
//	out_w = (width - 1)*stride - 2*padding + k
//
// Algorithm: the forward pass of a transposed convolution is the input
// backward pass of a regular convolution. Per image:
//
//	col[C_out*k*k, H*W] = kernel[C_in, C_out*k*k]^T @ x[C_in, H*W]
//	out                 = col2im(col)
//
// With k == stride (the U-Net upsampler) windows never overlap and every
// input pixel expands into its own k×k output patch.
func (cpu *CPUBackend) ConvTranspose2D(input, kernel, bias *tensor.Tensor, stride, padding int) *tensor.Tensor {
	g := convTranspose2dGeometry(input.Shape(), kernel.Shape(), stride, padding)

	output := tensor.Zeros(tensor.Shape{g.n, g.cOut, g.hOut, g.wOut})
	inputData := input.Data()
	outputData := output.Data()
	weight := matrix(kernel.Data(), g.cIn, g.colRows())
	outPlane := g.hOut * g.wOut

	parallel.Range(g.n, func(start, end int) {
		col := make([]float32, g.colRows()*g.plane())
		for n := start; n < end; n++ {
			x := inputData[n*g.cIn*g.plane() : (n+1)*g.cIn*g.plane()]
			gemm(true, false, 1, weight, matrix(x, g.cIn, g.plane()), 0, matrix(col, g.colRows(), g.plane()))

			out := outputData[n*g.cOut*outPlane : (n+1)*g.cOut*outPlane]
			// The output plays the role of a convolution input of size
			// hOut×wOut whose "output" grid is the transposed-conv input.
			col2im(out, col, g.cOut, g.hOut, g.wOut, g.k, stride, padding, g.h, g.w)
			if bias != nil {
				addChannelBias(out, bias.Data(), outPlane)
			}
		}
	}, cpu.cfg)

	return output
}

// ConvTranspose2DBackward computes the gradients of ConvTranspose2D.
//
// The kernel gradient is accumulated into gradKernel ([C_in, C_out, k, k])
// and the bias gradient into gradBias ([C_out], may be nil). Returns the
// gradient w.r.t. input.
//
// Per image:
//
//	gradCol     = im2col(gradOut)                       [C_out*k*k, H*W]
//	gradInput   = kernel[C_in, C_out*k*k] @ gradCol     [C_in, H*W]
//	gradKernel += x[C_in, H*W] @ gradCol^T              [C_in, C_out*k*k]
func (cpu *CPUBackend) ConvTranspose2DBackward(
	input, kernel, gradOut *tensor.Tensor,
	stride, padding int,
	gradKernel, gradBias *tensor.Tensor,
) *tensor.Tensor {
	g := convTranspose2dGeometry(input.Shape(), kernel.Shape(), stride, padding)
	if !gradOut.Shape().Equal(tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}) {
		panic(fmt.Sprintf("conv_transpose2d backward: grad shape %v, expected [%d %d %d %d]",
			gradOut.Shape(), g.n, g.cOut, g.hOut, g.wOut))
	}

	gradInput := tensor.ZerosLike(input)
	inputData := input.Data()
	gradOutData := gradOut.Data()
	gradInputData := gradInput.Data()
	weight := matrix(kernel.Data(), g.cIn, g.colRows())
	outPlane := g.hOut * g.wOut

	var mu sync.Mutex
	parallel.Range(g.n, func(start, end int) {
		gradCol := make([]float32, g.colRows()*g.plane())
		partialKernel := make([]float32, g.cIn*g.colRows())
		var partialBias []float32
		if gradBias != nil {
			partialBias = make([]float32, g.cOut)
		}

		for n := start; n < end; n++ {
			dOut := gradOutData[n*g.cOut*outPlane : (n+1)*g.cOut*outPlane]
			im2col(gradCol, dOut, g.cOut, g.hOut, g.wOut, g.k, stride, padding, g.h, g.w)
			gradColM := matrix(gradCol, g.colRows(), g.plane())

			dx := gradInputData[n*g.cIn*g.plane() : (n+1)*g.cIn*g.plane()]
			gemm(false, false, 1, weight, gradColM, 0, matrix(dx, g.cIn, g.plane()))

			x := inputData[n*g.cIn*g.plane() : (n+1)*g.cIn*g.plane()]
			gemm(false, true, 1, matrix(x, g.cIn, g.plane()), gradColM, 1, matrix(partialKernel, g.cIn, g.colRows()))

			if partialBias != nil {
				sumChannels(partialBias, dOut, outPlane)
			}
		}

		mu.Lock()
		addInto(gradKernel.Data(), partialKernel)
		if gradBias != nil {
			addInto(gradBias.Data(), partialBias)
		}
		mu.Unlock()
	}, cpu.cfg)

	return gradInput
}

// transposeGeometry mirrors convGeometry for transposed convolutions.
// Here plane() is the input plane and colRows() is C_out*k*k.
type transposeGeometry struct {
	n, cIn, h, w int
	cOut, k      int
	hOut, wOut   int
}

func (g transposeGeometry) plane() int   { return g.h * g.w }
func (g transposeGeometry) colRows() int { return g.cOut * g.k * g.k }

func convTranspose2dGeometry(inputShape, kernelShape tensor.Shape, stride, padding int) transposeGeometry {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: kernel must be 4D [C_in,C_out,K,K], got %dD", len(kernelShape)))
	}
	if kernelShape[2] != kernelShape[3] {
		panic(fmt.Sprintf("conv_transpose2d: only square kernels are supported, got %dx%d", kernelShape[2], kernelShape[3]))
	}
	if inputShape[1] != kernelShape[0] {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != kernel channels %d", inputShape[1], kernelShape[0]))
	}

	g := transposeGeometry{
		n: inputShape[0], cIn: inputShape[1], h: inputShape[2], w: inputShape[3],
		cOut: kernelShape[1], k: kernelShape[2],
	}
	g.hOut = (g.h-1)*stride - 2*padding + g.k
	g.wOut = (g.w-1)*stride - 2*padding + g.k
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid output dimensions: out_h=%d, out_w=%d", g.hOut, g.wOut))
	}
	return g
}
