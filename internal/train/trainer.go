// Package train drives a diffusion process over a data loader: the epoch
// and batch loop, optimizer steps, and observer callbacks for scalar logs,
// image grids and checkpoints.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/born-ml/ddpm/internal/data"
	"github.com/born-ml/ddpm/internal/diffusion"
	"github.com/born-ml/ddpm/internal/optim"
)

// ErrNonFiniteLoss aborts training when a step produces NaN or Inf.
var ErrNonFiniteLoss = errors.New("train: non-finite loss")

// Trainer runs the training loop.
//
// Each batch does ZeroGrad, TrainingStep (forward and backward) and Step.
// The context is checked between batches; a step in flight always
// completes.
type Trainer struct {
	Process   *diffusion.Process
	Optimizer optim.Optimizer
	Loader    *data.Loader
	Device    diffusion.Device
	Callbacks []Callback
	Epochs    int
	Rng       *rand.Rand

	// Logger receives progress lines; nil uses slog.Default().
	Logger *slog.Logger
	// LogEvery logs every n-th batch loss (0 disables batch lines).
	LogEvery int
}

// Fit trains for Epochs epochs. OnTrainEnd runs even when training stops
// early; its errors are joined with the cause.
func (t *Trainer) Fit(ctx context.Context) (err error) {
	if err := t.validate(); err != nil {
		return err
	}
	logger := t.logger()

	for _, cb := range t.Callbacks {
		if err := cb.OnTrainBegin(t); err != nil {
			return fmt.Errorf("train: begin: %w", err)
		}
	}
	defer func() {
		for _, cb := range t.Callbacks {
			if cbErr := cb.OnTrainEnd(); cbErr != nil {
				err = errors.Join(err, fmt.Errorf("train: end: %w", cbErr))
			}
		}
	}()

	net := t.Process.Network()
	wasTraining := net.Training()
	net.SetTraining(true)
	defer net.SetTraining(wasTraining)

	logger.Info("training started",
		"epochs", t.Epochs,
		"batches_per_epoch", t.Loader.Len(),
		"device", t.Device.Device().String(),
		"lr", t.Optimizer.GetLR())

	for epoch := range t.Epochs {
		stats, err := t.runEpoch(ctx, epoch, logger)
		if err != nil {
			return err
		}
		logger.Info("epoch complete",
			"epoch", epoch,
			"loss_mean", stats.MeanLoss,
			"loss_std", stats.StdLoss,
			"duration", stats.Duration.Round(time.Millisecond))
		for _, cb := range t.Callbacks {
			if err := cb.OnEpochEnd(epoch, stats); err != nil {
				return fmt.Errorf("train: epoch %d end: %w", epoch, err)
			}
		}
	}
	return nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int, logger *slog.Logger) (EpochStats, error) {
	for _, cb := range t.Callbacks {
		if err := cb.OnEpochBegin(epoch); err != nil {
			return EpochStats{}, fmt.Errorf("train: epoch %d begin: %w", epoch, err)
		}
	}

	start := time.Now()
	t.Loader.Reset()
	losses := make([]float64, 0, t.Loader.Len())

	for batchIdx := 0; ; batchIdx++ {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, err
		}
		batch, ok := t.Loader.Next()
		if !ok {
			break
		}

		t.Optimizer.ZeroGrad()
		loss, err := t.Process.TrainingStep(t.Device, batch.Images, t.Rng)
		if err != nil {
			return EpochStats{}, fmt.Errorf("train: epoch %d batch %d: %w", epoch, batchIdx, err)
		}
		if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) {
			return EpochStats{}, fmt.Errorf("%w: epoch %d batch %d", ErrNonFiniteLoss, epoch, batchIdx)
		}
		t.Optimizer.Step()
		losses = append(losses, float64(loss))

		if t.LogEvery > 0 && batchIdx%t.LogEvery == 0 {
			logger.Info("batch", "epoch", epoch, "batch", batchIdx, "loss", loss)
		}
		for _, cb := range t.Callbacks {
			if err := cb.OnBatchEnd(epoch, batchIdx, loss); err != nil {
				return EpochStats{}, fmt.Errorf("train: epoch %d batch %d: %w", epoch, batchIdx, err)
			}
		}
	}

	return newEpochStats(epoch, losses, time.Since(start)), nil
}

func (t *Trainer) validate() error {
	switch {
	case t.Process == nil:
		return errors.New("train: nil process")
	case t.Optimizer == nil:
		return errors.New("train: nil optimizer")
	case t.Loader == nil:
		return errors.New("train: nil loader")
	case t.Device == nil:
		return errors.New("train: nil device")
	case t.Rng == nil:
		return errors.New("train: nil rng")
	case t.Epochs < 0:
		return fmt.Errorf("train: negative epochs %d", t.Epochs)
	}
	return nil
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
