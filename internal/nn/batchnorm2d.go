package nn

import (
	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/tensor"
)

// BatchNorm2D defaults.
const (
	DefaultBatchNormEps      = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] input.
//
// In training mode the batch statistics are used and the running
// statistics are updated:
//
//	running = (1 - momentum) * running + momentum * batch
//
// with the unbiased batch variance. In evaluation mode the running
// statistics are used instead, which makes the output of a sample
// independent of the rest of its batch.
//
// Parameters:
//   - weight (gamma): [C], initialized to 1
//   - bias (beta): [C], initialized to 0
//
// Buffers:
//   - running_mean: [C], initialized to 0
//   - running_var: [C], initialized to 1
type BatchNorm2D struct {
	numFeatures int
	eps         float32
	momentum    float32
	training    bool

	gamma *Parameter
	beta  *Parameter

	runningMean *tensor.Tensor
	runningVar  *tensor.Tensor

	backend Backend
	stats   *cpu.BatchNormStats // cached for Backward
}

// NewBatchNorm2D creates a batch norm layer in training mode.
func NewBatchNorm2D(numFeatures int, backend Backend) *BatchNorm2D {
	return &BatchNorm2D{
		numFeatures: numFeatures,
		eps:         DefaultBatchNormEps,
		momentum:    DefaultBatchNormMomentum,
		training:    true,
		gamma:       NewParameter("weight", tensor.Full(tensor.Shape{numFeatures}, 1)),
		beta:        NewParameter("bias", tensor.Zeros(tensor.Shape{numFeatures})),
		runningMean: tensor.Zeros(tensor.Shape{numFeatures}),
		runningVar:  tensor.Full(tensor.Shape{numFeatures}, 1),
		backend:     backend,
	}
}

// Forward normalizes the input.
func (bn *BatchNorm2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	if !bn.training {
		bn.stats = nil
		return bn.backend.BatchNorm2DInference(input, bn.gamma.Tensor(), bn.beta.Tensor(),
			bn.runningMean.Data(), bn.runningVar.Data(), bn.eps)
	}

	output, stats := bn.backend.BatchNorm2DTrain(input, bn.gamma.Tensor(), bn.beta.Tensor(), bn.eps)
	bn.stats = stats

	shape := input.Shape()
	count := float32(shape[0] * shape[2] * shape[3])
	correction := float32(1)
	if count > 1 {
		correction = count / (count - 1)
	}
	mean, variance := bn.runningMean.Data(), bn.runningVar.Data()
	for c := range mean {
		mean[c] = (1-bn.momentum)*mean[c] + bn.momentum*stats.Mean[c]
		variance[c] = (1-bn.momentum)*variance[c] + bn.momentum*stats.Variance[c]*correction
	}

	return output
}

// Backward accumulates gamma and beta gradients and returns the input
// gradient. Only valid after a training-mode Forward.
func (bn *BatchNorm2D) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if bn.stats == nil {
		panic("batchnorm2d: Backward requires a training-mode Forward")
	}
	gradInput := bn.backend.BatchNorm2DBackward(gradOutput, bn.gamma.Tensor(), bn.stats, bn.gamma.Grad(), bn.beta.Grad())
	bn.stats = nil
	return gradInput
}

// Parameters returns gamma and beta.
func (bn *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{bn.gamma, bn.beta}
}

// Buffers returns the running statistics, keyed by state-dict name.
func (bn *BatchNorm2D) Buffers() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// SetTraining switches between batch statistics (true) and running
// statistics (false).
func (bn *BatchNorm2D) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer uses batch statistics.
func (bn *BatchNorm2D) Training() bool {
	return bn.training
}
