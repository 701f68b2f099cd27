package cpu

import (
	"github.com/born-ml/ddpm/internal/parallel"
	"github.com/born-ml/ddpm/internal/tensor"
)

// ReLUInPlace applies max(0, x) element-wise, overwriting x.
func (cpu *CPUBackend) ReLUInPlace(x *tensor.Tensor) {
	data := x.Data()
	parallel.Range(len(data), func(start, end int) {
		for i := start; i < end; i++ {
			if data[i] < 0 {
				data[i] = 0
			}
		}
	}, cpu.cfg)
}

// ReLUBackward masks gradOut with the ReLU output: gradient flows only where
// the activation was positive.
func (cpu *CPUBackend) ReLUBackward(output, gradOut *tensor.Tensor) *tensor.Tensor {
	gradInput := tensor.ZerosLike(gradOut)
	out, dy, dx := output.Data(), gradOut.Data(), gradInput.Data()
	parallel.Range(len(dx), func(start, end int) {
		for i := start; i < end; i++ {
			if out[i] > 0 {
				dx[i] = dy[i]
			}
		}
	}, cpu.cfg)
	return gradInput
}
