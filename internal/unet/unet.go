// Package unet implements the convolutional encoder-decoder that predicts
// the noise contained in a noisy image.
//
// The network has no timestep input: the same weights are used at every
// diffusion step.
package unet

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/nn"
	"github.com/born-ml/ddpm/internal/tensor"
)

// UNet maps [N, InChannels, H, W] to [N, OutChannels, H, W] for any
// H, W >= Config.MinSpatialSize().
//
// Layout for features [f0..fL-1]:
//
//	encoder:    block(in->f0), pool, block(f0->f1), pool, ...
//	bottleneck: block(fL-1 -> 2*fL-1)
//	decoder:    for f in reversed(features):
//	                up = convT2x2(2f -> f); pad up to skip size
//	                block(cat(skip, up): 2f -> f)
//	final:      conv1x1(f0 -> out)
type UNet struct {
	cfg     Config
	backend *cpu.CPUBackend

	downs      []*block
	pools      []*nn.MaxPool2D
	bottleneck *block
	ups        []*nn.ConvTranspose2D
	upBlocks   []*block
	final      *nn.Conv2D

	training bool

	// Per-Forward state consumed by Backward.
	upShapes []tensor.Shape
}

// New builds a network with freshly initialized weights drawn from rng.
// The network starts in training mode.
func New(cfg Config, rng *rand.Rand) (*UNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend := cpu.New()
	features := append([]int(nil), cfg.Features...)
	cfg.Features = features
	levels := len(features)

	u := &UNet{
		cfg:      cfg,
		backend:  backend,
		downs:    make([]*block, levels),
		pools:    make([]*nn.MaxPool2D, levels),
		ups:      make([]*nn.ConvTranspose2D, levels),
		upBlocks: make([]*block, levels),
		training: true,
		upShapes: make([]tensor.Shape, levels),
	}

	in := cfg.InChannels
	for i, f := range features {
		u.downs[i] = newBlock(in, f, backend, rng)
		u.pools[i] = nn.NewMaxPool2D(2, 2, backend)
		in = f
	}
	u.bottleneck = newBlock(features[levels-1], features[levels-1]*2, backend, rng)
	// Each decoder stage upsamples from the width below it back to the
	// matching encoder width.
	in = features[levels-1] * 2
	for i := range levels {
		f := features[levels-1-i]
		u.ups[i] = nn.NewConvTranspose2D(in, f, 2, 2, 0, backend, rng)
		u.upBlocks[i] = newBlock(f*2, f, backend, rng)
		in = f
	}
	u.final = nn.NewConv2D(features[0], cfg.OutChannels, 1, 1, 0, true, backend, rng)

	return u, nil
}

// Config returns the network configuration.
func (u *UNet) Config() Config {
	cfg := u.cfg
	cfg.Features = append([]int(nil), u.cfg.Features...)
	return cfg
}

// Forward predicts the noise in x. Returns tensor.ErrShapeMismatch for a
// non-4D input, a channel count other than InChannels, or spatial dims
// below MinSpatialSize.
func (u *UNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	_, c, h, w, err := x.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("unet: %w", err)
	}
	if c != u.cfg.InChannels {
		return nil, fmt.Errorf("unet: input has %d channels, expected %d: %w", c, u.cfg.InChannels, tensor.ErrShapeMismatch)
	}
	if minSize := u.cfg.MinSpatialSize(); h < minSize || w < minSize {
		return nil, fmt.Errorf("unet: input %dx%d smaller than %dx%d: %w", h, w, minSize, minSize, tensor.ErrShapeMismatch)
	}
	return u.forward(x.OnDevice(tensor.CPU)), nil
}

func (u *UNet) forward(x *tensor.Tensor) *tensor.Tensor {
	levels := len(u.downs)
	skips := make([]*tensor.Tensor, levels)

	for i := range levels {
		x = u.downs[i].Forward(x)
		skips[i] = x
		x = u.pools[i].Forward(x)
	}

	x = u.bottleneck.Forward(x)

	for i := range levels {
		skip := skips[levels-1-i]
		up := u.ups[i].Forward(x)
		u.upShapes[i] = up.Shape().Clone()
		up = u.backend.PadBottomRight(up, skip.Dim(2), skip.Dim(3))
		x = u.upBlocks[i].Forward(u.backend.ConcatChannels(skip, up))
	}

	return u.final.Forward(x)
}

// Backward propagates the gradient of the last Forward output through the
// network, accumulating parameter gradients. Returns the input gradient.
func (u *UNet) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	levels := len(u.downs)
	skipGrads := make([]*tensor.Tensor, levels)

	g := u.final.Backward(gradOutput)
	for i := levels - 1; i >= 0; i-- {
		g = u.upBlocks[i].Backward(g)
		gSkip, gUp := u.backend.SplitChannels(g, u.cfg.Features[levels-1-i])
		skipGrads[levels-1-i] = gSkip
		gUp = u.backend.CropBottomRight(gUp, u.upShapes[i][2], u.upShapes[i][3])
		g = u.ups[i].Backward(gUp)
	}

	g = u.bottleneck.Backward(g)

	for i := levels - 1; i >= 0; i-- {
		g = u.pools[i].Backward(g)
		addInPlace(g, skipGrads[i])
		g = u.downs[i].Backward(g)
	}
	return g
}

// SetTraining switches every batch-norm layer between batch statistics
// (training) and running statistics (evaluation).
func (u *UNet) SetTraining(training bool) {
	u.training = training
	for i := range u.downs {
		u.downs[i].SetTraining(training)
		u.upBlocks[i].SetTraining(training)
	}
	u.bottleneck.SetTraining(training)
}

// Training reports the current mode.
func (u *UNet) Training() bool {
	return u.training
}

// Parameters returns every trainable parameter in a stable order.
func (u *UNet) Parameters() []*nn.Parameter {
	named := u.NamedParameters()
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]*nn.Parameter, len(names))
	for i, name := range names {
		params[i] = named[name]
	}
	return params
}

// NamedParameters returns the trainable parameters keyed by state-dict name.
func (u *UNet) NamedParameters() map[string]*nn.Parameter {
	params, _ := u.collect()
	return params
}

// StateDict returns parameters and batch-norm running statistics keyed by
// name. The tensors are live: loading into them updates the network.
func (u *UNet) StateDict() map[string]*tensor.Tensor {
	params, buffers := u.collect()
	state := make(map[string]*tensor.Tensor, len(params)+len(buffers))
	for name, p := range params {
		state[name] = p.Tensor()
	}
	for name, t := range buffers {
		state[name] = t
	}
	return state
}

// LoadStateDict copies tensors into the network. Every entry of the state
// dict must be present with a matching shape; extra entries are rejected.
func (u *UNet) LoadStateDict(state map[string]*tensor.Tensor) error {
	own := u.StateDict()
	for name := range state {
		if _, ok := own[name]; !ok {
			return fmt.Errorf("unet: unexpected key %q", name)
		}
	}
	for name, dst := range own {
		src, ok := state[name]
		if !ok {
			return fmt.Errorf("unet: missing key %q", name)
		}
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("unet: %s has shape %v, expected %v: %w", name, src.Shape(), dst.Shape(), tensor.ErrShapeMismatch)
		}
		dst.CopyFrom(src)
	}
	return nil
}

func (u *UNet) collect() (map[string]*nn.Parameter, map[string]*tensor.Tensor) {
	params := make(map[string]*nn.Parameter)
	buffers := make(map[string]*tensor.Tensor)

	for i, b := range u.downs {
		b.collect(fmt.Sprintf("downs.%d", i), params, buffers)
	}
	u.bottleneck.collect("bottleneck", params, buffers)
	for i := range u.ups {
		for _, p := range u.ups[i].Parameters() {
			params[fmt.Sprintf("ups.%d.%s", 2*i, p.Name())] = p
		}
		u.upBlocks[i].collect(fmt.Sprintf("ups.%d", 2*i+1), params, buffers)
	}
	for _, p := range u.final.Parameters() {
		params["final_conv."+p.Name()] = p
	}
	return params, buffers
}

func addInPlace(dst, src *tensor.Tensor) {
	d, s := dst.Data(), src.Data()
	for i := range d {
		d[i] += s[i]
	}
}
