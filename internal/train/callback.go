package train

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Callback observes training. A non-nil error from any hook aborts Fit.
type Callback interface {
	OnTrainBegin(t *Trainer) error
	OnEpochBegin(epoch int) error
	OnBatchEnd(epoch, batch int, loss float32) error
	OnEpochEnd(epoch int, stats EpochStats) error
	OnTrainEnd() error
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(*Trainer) error        { return nil }
func (BaseCallback) OnEpochBegin(int) error             { return nil }
func (BaseCallback) OnBatchEnd(int, int, float32) error { return nil }
func (BaseCallback) OnEpochEnd(int, EpochStats) error   { return nil }
func (BaseCallback) OnTrainEnd() error                  { return nil }

// EpochStats summarizes the batch losses of one epoch.
type EpochStats struct {
	Epoch    int
	Batches  int
	MeanLoss float64
	StdLoss  float64 // Sample standard deviation; 0 for a single batch
	MinLoss  float64
	MaxLoss  float64
	Duration time.Duration
}

func newEpochStats(epoch int, losses []float64, elapsed time.Duration) EpochStats {
	s := EpochStats{Epoch: epoch, Batches: len(losses), Duration: elapsed}
	if len(losses) == 0 {
		return s
	}
	s.MeanLoss = stat.Mean(losses, nil)
	if len(losses) > 1 {
		s.StdLoss = stat.StdDev(losses, nil)
	}
	s.MinLoss, s.MaxLoss = losses[0], losses[0]
	for _, l := range losses[1:] {
		s.MinLoss = min(s.MinLoss, l)
		s.MaxLoss = max(s.MaxLoss, l)
	}
	return s
}

// ScalarCallback forwards the per-batch loss as "train_loss" and the epoch
// mean as "epoch_loss" to a Logger. Steps count batches across epochs.
type ScalarCallback struct {
	BaseCallback
	Logger Logger

	step int
}

// NewScalarCallback creates a ScalarCallback writing to logger.
func NewScalarCallback(logger Logger) *ScalarCallback {
	return &ScalarCallback{Logger: logger}
}

func (c *ScalarCallback) OnTrainBegin(*Trainer) error {
	c.step = 0
	return nil
}

func (c *ScalarCallback) OnBatchEnd(_, _ int, loss float32) error {
	err := c.Logger.LogScalar("train_loss", float64(loss), c.step)
	c.step++
	return err
}

func (c *ScalarCallback) OnEpochEnd(epoch int, stats EpochStats) error {
	return c.Logger.LogScalar("epoch_loss", stats.MeanLoss, epoch)
}
