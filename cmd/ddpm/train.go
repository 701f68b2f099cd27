package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/born-ml/ddpm/internal/config"
	"github.com/born-ml/ddpm/internal/data"
	"github.com/born-ml/ddpm/internal/diffusion"
	"github.com/born-ml/ddpm/internal/optim"
	"github.com/born-ml/ddpm/internal/schedule"
	"github.com/born-ml/ddpm/internal/train"
	"github.com/born-ml/ddpm/internal/unet"
)

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (defaults apply when empty)")
	dataDir := fs.String("data", "", "Directory with MNIST IDX files")
	synthetic := fs.Bool("synthetic", false, "Train on generated digit glyphs instead of MNIST")
	epochs := fs.Int("epochs", 0, "Number of epochs")
	batch := fs.Int("batch", 0, "Batch size")
	lr := fs.Float64("lr", 0, "Learning rate")
	optimizer := fs.String("optimizer", "", "Optimizer: adam or sgd")
	device := fs.String("device", "", "Device: cpu or webgpu")
	seed := fs.Uint64("seed", 0, "Random seed")
	features := fs.String("features", "", "Comma-separated U-Net stage widths, e.g. 64,128,256,512")
	timesteps := fs.Int("timesteps", 0, "Diffusion steps")
	maxSamples := fs.Int("max-samples", 0, "Cap on training images (0 = all)")
	sampleEvery := fs.Int("sample-every", 0, "Log generated samples every n epochs (0 = never)")
	logDir := fs.String("log-dir", "", "Root directory for run logs")
	ckptDir := fs.String("checkpoint-dir", "", "Root directory for checkpoints")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	logger, err := newLogger(*logFormat, *logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	// Flags given explicitly override the file.
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Dir = *dataDir
		case "synthetic":
			cfg.Data.Synthetic = *synthetic
		case "epochs":
			cfg.Train.Epochs = *epochs
		case "batch":
			cfg.Train.BatchSize = *batch
		case "lr":
			cfg.Train.LR = float32(*lr)
		case "optimizer":
			cfg.Train.Optimizer = *optimizer
		case "device":
			cfg.Device = *device
		case "seed":
			cfg.Seed = *seed
		case "features":
			cfg.Network.Features, flagErr = parseFeatures(*features)
		case "timesteps":
			cfg.Schedule.Timesteps = *timesteps
		case "max-samples":
			cfg.Data.MaxSamples = *maxSamples
		case "sample-every":
			cfg.Sample.Every = *sampleEvery
		case "log-dir":
			cfg.Output.LogDir = *logDir
		case "checkpoint-dir":
			cfg.Output.CheckpointDir = *ckptDir
		}
	})
	if flagErr != nil {
		return flagErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return trainWith(ctx, cfg, logger)
}

func trainWith(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	rng := newRNG(cfg.Seed)

	trainSet, valSet, err := loadData(cfg, logger)
	if err != nil {
		return err
	}
	trainLoader, err := data.NewLoader(trainSet, cfg.Train.BatchSize, true, rng)
	if err != nil {
		return err
	}
	valLoader, err := data.NewLoader(valSet, cfg.Train.BatchSize, false, nil)
	if err != nil {
		return err
	}

	sched, err := schedule.New(cfg.Schedule.Timesteps, cfg.Schedule.BetaStart, cfg.Schedule.BetaEnd)
	if err != nil {
		return err
	}
	net, err := unet.New(cfg.Network, rng)
	if err != nil {
		return err
	}
	opt, err := optim.New(cfg.Train.Optimizer, net.Parameters(), cfg.Train.LR)
	if err != nil {
		return err
	}

	dev, release, err := openDevice(cfg.Device, logger)
	if err != nil {
		return err
	}
	defer release()

	runID := train.NewRunID()
	runDir := filepath.Join(cfg.Output.LogDir, runID)
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return err
	}
	if err := writeRunConfig(runDir, cfg); err != nil {
		return err
	}

	csvLog, err := train.NewCSVLogger(filepath.Join(runDir, "scalars.csv"))
	if err != nil {
		return err
	}
	defer csvLog.Close()
	imageLog, err := train.NewImageDirLogger(filepath.Join(runDir, "images"), cfg.Output.ImageScale)
	if err != nil {
		return err
	}
	logs := train.MultiLogger{csvLog, imageLog, train.SlogLogger{Logger: logger, Level: slog.LevelDebug}}

	images := train.NewImageCallback(logs, valLoader)
	images.MaxImages = 16
	if cfg.Sample.Every > 0 {
		images.SampleCount = cfg.Sample.Count
		images.SampleSize = cfg.Sample.ImageSize
		images.SampleEvery = cfg.Sample.Every
	}
	meta := train.CheckpointMetadata(runID, cfg.Network, cfg.Schedule.Timesteps, cfg.Schedule.BetaStart, cfg.Schedule.BetaEnd)
	ckpt := train.NewCheckpointCallback(filepath.Join(cfg.Output.CheckpointDir, runID), net, meta)
	ckpt.KeepAll = cfg.Output.KeepAll

	trainer := &train.Trainer{
		Process:   diffusion.New(sched, net, diffusion.Config{Channels: cfg.Network.InChannels}),
		Optimizer: opt,
		Loader:    trainLoader,
		Device:    dev,
		Callbacks: []train.Callback{train.NewScalarCallback(logs), images, ckpt},
		Epochs:    cfg.Train.Epochs,
		Rng:       rng,
		Logger:    logger.With("run_id", runID),
		LogEvery:  cfg.Train.LogEvery,
	}

	logger.Info("run created", "run_id", runID, "log_dir", runDir, "checkpoint_dir", ckpt.Dir,
		"train_images", trainSet.Len(), "val_images", valSet.Len())
	if err := trainer.Fit(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("training interrupted", "run_id", runID)
			return nil
		}
		return err
	}
	logger.Info("training finished", "checkpoint", filepath.Join(ckpt.Dir, train.LatestCheckpoint))
	return nil
}

func loadData(cfg config.Config, logger *slog.Logger) (trainSet, valSet *data.Dataset, err error) {
	if cfg.Data.Synthetic {
		rng := newRNG(cfg.Seed + 1)
		logger.Info("using synthetic digits", "samples", cfg.Data.Samples, "size", cfg.Data.ImageSize)
		return data.Synthetic(cfg.Data.Samples, cfg.Data.ImageSize, rng),
			data.Synthetic(max(cfg.Train.BatchSize, 16), cfg.Data.ImageSize, rng), nil
	}

	trainSet, err = data.LoadMNIST(cfg.Data.Dir, true, cfg.Data.MaxSamples)
	if err != nil {
		return nil, nil, fmt.Errorf("load MNIST from %s (use -synthetic to train without it): %w", cfg.Data.Dir, err)
	}
	valSet, err = data.LoadMNIST(cfg.Data.Dir, false, cfg.Train.BatchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("load MNIST test split from %s: %w", cfg.Data.Dir, err)
	}
	return trainSet, valSet, nil
}

// writeRunConfig records the resolved configuration next to the run logs.
func writeRunConfig(runDir string, cfg config.Config) error {
	raw, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "config.yaml"), raw, 0o600); err != nil {
		return fmt.Errorf("write run config: %w", err)
	}
	return nil
}
