package diffusion

import (
	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/backend/webgpu"
	"github.com/born-ml/ddpm/internal/tensor"
)

// Device places schedule coefficients and runs the element-wise diffusion
// kernels. The network itself always runs on the host kernels.
type Device interface {
	tensor.Placer

	// QSample returns sqrtAC[t[b]]*x0 + sqrtOneMinusAC[t[b]]*noise for
	// every batch element b. The coefficient sequences are the 1-D tensors
	// this device placed, so the gather by t runs on the device.
	QSample(x0, noise, sqrtAC, sqrtOneMinusAC *tensor.Tensor, t []int) (*tensor.Tensor, error)

	// ReverseStep updates x in place:
	//	x = (x - noiseCoef*eps) * invSqrtAlpha + sigma*z
	// A nil z drops the noise term.
	ReverseStep(x, eps, z *tensor.Tensor, noiseCoef, invSqrtAlpha, sigma float32) error
}

var (
	_ Device = (*cpu.CPUBackend)(nil)
	_ Device = (*webgpu.Backend)(nil)
)
