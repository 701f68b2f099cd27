package unet

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/nn"
	"github.com/born-ml/ddpm/internal/tensor"
)

// block is two Conv3x3 -> BatchNorm -> ReLU stages at constant spatial size.
type block struct {
	seq *nn.Sequential
}

func newBlock(in, out int, backend nn.Backend, rng *rand.Rand) *block {
	return &block{seq: nn.NewSequential(
		nn.NewConv2D(in, out, 3, 1, 1, true, backend, rng),
		nn.NewBatchNorm2D(out, backend),
		nn.NewReLU(backend),
		nn.NewConv2D(out, out, 3, 1, 1, true, backend, rng),
		nn.NewBatchNorm2D(out, backend),
		nn.NewReLU(backend),
	)}
}

func (b *block) Forward(x *tensor.Tensor) *tensor.Tensor  { return b.seq.Forward(x) }
func (b *block) Backward(g *tensor.Tensor) *tensor.Tensor { return b.seq.Backward(g) }
func (b *block) SetTraining(training bool)                { b.seq.SetTraining(training) }

// collect adds the block's parameters and buffers under prefix, using the
// sequential indices (conv.0, conv.1, conv.3, conv.4).
func (b *block) collect(prefix string, params map[string]*nn.Parameter, buffers map[string]*tensor.Tensor) {
	for i, m := range b.seq.Modules() {
		name := fmt.Sprintf("%s.conv.%d", prefix, i)
		for _, p := range m.Parameters() {
			params[name+"."+p.Name()] = p
		}
		if bn, ok := m.(*nn.BatchNorm2D); ok {
			for k, t := range bn.Buffers() {
				buffers[name+"."+k] = t
			}
		}
	}
}
