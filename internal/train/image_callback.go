package train

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/data"
	"github.com/born-ml/ddpm/internal/imaging"
	"github.com/born-ml/ddpm/internal/tensor"
)

// Image grid names logged by ImageCallback.
const (
	OriginalImages  = "Original Images"
	NoisyImages     = "Noisy Images"
	DenoisedImages  = "Denoised Images"
	GeneratedImages = "Generated Images"
)

// ImageCallback logs epoch-end visualizations: the first validation batch,
// its noised version at random timesteps and the network's output on the
// noised batch. With SampleCount set it also logs a grid of images drawn
// by the full reverse process every SampleEvery epochs.
type ImageCallback struct {
	BaseCallback
	Logger    Logger
	Val       *data.Loader
	Grid      imaging.GridOptions
	MaxImages int // Cap on the validation images shown (0 = whole batch)

	SampleCount int
	SampleSize  int
	SampleEvery int // Epoch interval for generated grids (0 or 1 = every epoch)

	trainer *Trainer
}

// NewImageCallback creates an ImageCallback with the default grid layout.
func NewImageCallback(logger Logger, val *data.Loader) *ImageCallback {
	return &ImageCallback{
		Logger: logger,
		Val:    val,
		Grid:   imaging.DefaultGridOptions(),
	}
}

func (c *ImageCallback) OnTrainBegin(t *Trainer) error {
	c.trainer = t
	return nil
}

func (c *ImageCallback) OnEpochEnd(epoch int, _ EpochStats) error {
	t := c.trainer
	images := firstN(c.Val.First().Images, c.MaxImages)

	noisy, denoised, err := t.Process.Denoise(t.Device, images, t.Rng)
	if err != nil {
		return fmt.Errorf("image callback: %w", err)
	}

	grids := []struct {
		name  string
		batch *tensor.Tensor
	}{
		{OriginalImages, images},
		{NoisyImages, noisy},
		{DenoisedImages, denoised},
	}
	for _, g := range grids {
		if err := c.logGrid(g.name, g.batch, epoch); err != nil {
			return err
		}
	}

	if c.SampleCount <= 0 || (c.SampleEvery > 1 && (epoch+1)%c.SampleEvery != 0) {
		return nil
	}
	size := c.SampleSize
	if size <= 0 {
		size = images.Dim(3)
	}
	samples, err := t.Process.Sample(t.Device, size, c.SampleCount, t.Rng)
	if err != nil {
		return fmt.Errorf("image callback: sample: %w", err)
	}
	return c.logGrid(GeneratedImages, samples, epoch)
}

func (c *ImageCallback) logGrid(name string, batch *tensor.Tensor, step int) error {
	grid, err := imaging.MakeGrid(batch, c.Grid)
	if err != nil {
		return fmt.Errorf("image callback: %s: %w", name, err)
	}
	return c.Logger.LogImage(name, grid, step)
}

// firstN returns the first n samples of a batch (all of them for n <= 0).
func firstN(batch *tensor.Tensor, n int) *tensor.Tensor {
	if n <= 0 || n >= batch.Dim(0) {
		return batch
	}
	shape := batch.Shape().Clone()
	plane := batch.NumElements() / shape[0]
	shape[0] = n
	out := tensor.Zeros(shape)
	copy(out.Data(), batch.Data()[:n*plane])
	return out
}
