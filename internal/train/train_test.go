package train

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/data"
	"github.com/born-ml/ddpm/internal/diffusion"
	"github.com/born-ml/ddpm/internal/optim"
	"github.com/born-ml/ddpm/internal/schedule"
	"github.com/born-ml/ddpm/internal/tensor"
	"github.com/born-ml/ddpm/internal/unet"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

type fixture struct {
	net     *unet.UNet
	trainer *Trainer
}

func newFixture(t *testing.T, samples, batchSize int, lr float32) fixture {
	t.Helper()
	rng := newRNG(7)
	net, err := unet.New(unet.Config{InChannels: 1, OutChannels: 1, Features: []int{4, 8}}, rng)
	require.NoError(t, err)
	sched, err := schedule.New(100, 1e-4, 2e-2)
	require.NoError(t, err)
	loader, err := data.NewLoader(data.Synthetic(samples, 8, rng), batchSize, true, rng)
	require.NoError(t, err)

	return fixture{
		net: net,
		trainer: &Trainer{
			Process:   diffusion.New(sched, net, diffusion.Config{Channels: 1}),
			Optimizer: optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: lr}),
			Loader:    loader,
			Device:    cpu.New(),
			Epochs:    1,
			Rng:       rng,
		},
	}
}

// recorder logs every callback invocation.
type recorder struct {
	events []string
	failOn string
}

func (r *recorder) add(ev string) error {
	r.events = append(r.events, ev)
	if ev == r.failOn {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnTrainBegin(*Trainer) error { return r.add("train_begin") }
func (r *recorder) OnEpochBegin(e int) error    { return r.add(fmt.Sprintf("epoch_begin %d", e)) }
func (r *recorder) OnBatchEnd(e, b int, loss float32) error {
	if loss < 0 {
		return errors.New("negative loss")
	}
	return r.add(fmt.Sprintf("batch %d.%d", e, b))
}
func (r *recorder) OnEpochEnd(e int, s EpochStats) error {
	return r.add(fmt.Sprintf("epoch_end %d (%d batches)", e, s.Batches))
}
func (r *recorder) OnTrainEnd() error { return r.add("train_end") }

func TestFitCallbackOrder(t *testing.T) {
	f := newFixture(t, 8, 4, 1e-3)
	rec := &recorder{}
	f.trainer.Callbacks = []Callback{rec}
	f.trainer.Epochs = 2
	f.net.SetTraining(false)

	require.NoError(t, f.trainer.Fit(context.Background()))

	assert.Equal(t, []string{
		"train_begin",
		"epoch_begin 0", "batch 0.0", "batch 0.1", "epoch_end 0 (2 batches)",
		"epoch_begin 1", "batch 1.0", "batch 1.1", "epoch_end 1 (2 batches)",
		"train_end",
	}, rec.events)
	assert.False(t, f.net.Training(), "previous mode restored")
}

func TestFitStopsOnCallbackError(t *testing.T) {
	f := newFixture(t, 8, 4, 1e-3)
	rec := &recorder{failOn: "batch 0.0"}
	f.trainer.Callbacks = []Callback{rec}
	f.trainer.Epochs = 3

	err := f.trainer.Fit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"train_begin", "epoch_begin 0", "batch 0.0", "train_end"}, rec.events)
}

func TestFitHonorsCancellation(t *testing.T) {
	f := newFixture(t, 8, 4, 1e-3)
	rec := &recorder{}
	f.trainer.Callbacks = []Callback{rec}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.trainer.Fit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"train_begin", "epoch_begin 0", "train_end"}, rec.events)
}

func TestFitValidates(t *testing.T) {
	err := (&Trainer{}).Fit(context.Background())
	require.Error(t, err)
}

// statsRecorder keeps the epoch statistics.
type statsRecorder struct {
	BaseCallback
	stats []EpochStats
}

func (s *statsRecorder) OnEpochEnd(_ int, st EpochStats) error {
	s.stats = append(s.stats, st)
	return nil
}

func TestFitReducesLoss(t *testing.T) {
	if testing.Short() {
		t.Skip("trains for several epochs")
	}
	f := newFixture(t, 16, 8, 5e-3)
	rec := &statsRecorder{}
	f.trainer.Callbacks = []Callback{rec}
	f.trainer.Epochs = 25

	require.NoError(t, f.trainer.Fit(context.Background()))
	require.Len(t, rec.stats, 25)

	first := rec.stats[0].MeanLoss
	best := first
	for _, s := range rec.stats[5:] {
		best = min(best, s.MeanLoss)
	}
	assert.Less(t, best, first)
}

func TestEpochStats(t *testing.T) {
	s := newEpochStats(3, []float64{1, 2, 3, 4}, time.Second)
	assert.Equal(t, 3, s.Epoch)
	assert.Equal(t, 4, s.Batches)
	assert.InDelta(t, 2.5, s.MeanLoss, 1e-12)
	assert.InDelta(t, 1.2909944, s.StdLoss, 1e-6)
	assert.Equal(t, 1.0, s.MinLoss)
	assert.Equal(t, 4.0, s.MaxLoss)

	single := newEpochStats(0, []float64{0.5}, 0)
	assert.Zero(t, single.StdLoss)

	empty := newEpochStats(0, nil, 0)
	assert.Zero(t, empty.Batches)
}

// memLogger keeps everything in memory.
type memLogger struct {
	scalars map[string][]float64
	images  map[string]tensor.Shape
}

func newMemLogger() *memLogger {
	return &memLogger{scalars: map[string][]float64{}, images: map[string]tensor.Shape{}}
}

func (m *memLogger) LogScalar(name string, v float64, _ int) error {
	m.scalars[name] = append(m.scalars[name], v)
	return nil
}

func (m *memLogger) LogImage(name string, grid *tensor.Tensor, _ int) error {
	m.images[name] = grid.Shape()
	return nil
}

func TestScalarCallback(t *testing.T) {
	f := newFixture(t, 8, 4, 1e-3)
	mem := newMemLogger()
	f.trainer.Callbacks = []Callback{NewScalarCallback(mem)}
	f.trainer.Epochs = 2

	require.NoError(t, f.trainer.Fit(context.Background()))
	assert.Len(t, mem.scalars["train_loss"], 4)
	assert.Len(t, mem.scalars["epoch_loss"], 2)
}

func TestImageCallback(t *testing.T) {
	f := newFixture(t, 8, 4, 1e-3)
	val, err := data.NewLoader(data.Synthetic(8, 8, newRNG(3)), 4, false, nil)
	require.NoError(t, err)

	mem := newMemLogger()
	cb := NewImageCallback(mem, val)
	cb.SampleCount = 2
	f.trainer.Callbacks = []Callback{cb}

	require.NoError(t, f.trainer.Fit(context.Background()))

	// 4 tiles of 8x8 in one row with 2px padding.
	want := tensor.Shape{1, 12, 42}
	for _, name := range []string{OriginalImages, NoisyImages, DenoisedImages} {
		assert.Equal(t, want, mem.images[name], name)
	}
	assert.Equal(t, tensor.Shape{1, 12, 22}, mem.images[GeneratedImages])
}

func TestFirstN(t *testing.T) {
	batch := tensor.Randn(tensor.Shape{4, 1, 2, 2}, newRNG(1))
	out := firstN(batch, 2)
	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, out.Shape())
	assert.Equal(t, batch.Data()[:8], out.Data())
	assert.Same(t, batch, firstN(batch, 0))
}

func TestCheckpointCallbackRoundTrip(t *testing.T) {
	f := newFixture(t, 8, 4, 1e-3)
	dir := t.TempDir()
	meta := CheckpointMetadata(NewRunID(), f.net.Config(), 100, 1e-4, 2e-2)
	cb := NewCheckpointCallback(dir, f.net, meta)
	cb.KeepAll = true
	f.trainer.Callbacks = []Callback{cb}

	require.NoError(t, f.trainer.Fit(context.Background()))
	assert.FileExists(t, filepath.Join(dir, "epoch_000.safetensors"))

	cfg, err := NetworkConfigFromMetadata(meta)
	require.NoError(t, err)
	assert.Equal(t, f.net.Config(), cfg)

	restored, err := unet.New(cfg, newRNG(99))
	require.NoError(t, err)
	got, err := LoadCheckpoint(filepath.Join(dir, LatestCheckpoint), restored)
	require.NoError(t, err)
	assert.Equal(t, meta[MetaRunID], got[MetaRunID])
	assert.Equal(t, "0", got[MetaEpoch])
	assert.Equal(t, "100", got[MetaTimesteps])

	want := f.net.StateDict()
	for name, v := range restored.StateDict() {
		assert.Equal(t, want[name].Data(), v.Data(), name)
	}
}

func TestNetworkConfigFromMetadataErrors(t *testing.T) {
	_, err := NetworkConfigFromMetadata(map[string]string{})
	require.Error(t, err)

	_, err = NetworkConfigFromMetadata(map[string]string{
		MetaInChannels: "1", MetaOutChannels: "1", MetaFeatures: "4,x",
	})
	require.Error(t, err)
}

func TestCSVLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scalars.csv")
	l, err := NewCSVLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.LogScalar("train_loss", 0.5, 0))
	require.NoError(t, l.LogScalar("train_loss", 0.25, 1))
	require.NoError(t, l.LogImage("ignored", tensor.Zeros(tensor.Shape{1, 2, 2}), 0))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Error(t, l.LogScalar("late", 1, 2))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "step", "value"},
		{"train_loss", "0", "0.5"},
		{"train_loss", "1", "0.25"},
	}, rows)
}

func TestImageDirLogger(t *testing.T) {
	dir := t.TempDir()
	l, err := NewImageDirLogger(dir, 2)
	require.NoError(t, err)

	grid := tensor.Full(tensor.Shape{1, 6, 10}, 0.5)
	require.NoError(t, l.LogImage(DenoisedImages, grid, 3))
	assert.FileExists(t, filepath.Join(dir, "denoised_images", "step_0003.png"))

	assert.Error(t, l.LogImage("bad", tensor.Zeros(tensor.Shape{2, 2, 2}), 0))
}

func TestMultiLoggerJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	img, err := NewImageDirLogger(dir, 1)
	require.NoError(t, err)
	mem := newMemLogger()
	m := MultiLogger{mem, img, SlogLogger{}}

	require.NoError(t, m.LogScalar("x", 1, 0))
	assert.Equal(t, []float64{1}, mem.scalars["x"])
	assert.Error(t, m.LogImage("bad", tensor.Zeros(tensor.Shape{2, 2, 2}), 0))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "original_images", slug("Original Images"))
	assert.Equal(t, "image", slug("  "))
	assert.Equal(t, "a_b-c", slug("a/b-c"))
}
