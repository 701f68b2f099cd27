package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/born-ml/ddpm/internal/diffusion"
	"github.com/born-ml/ddpm/internal/imaging"
	"github.com/born-ml/ddpm/internal/schedule"
	"github.com/born-ml/ddpm/internal/serialization"
	"github.com/born-ml/ddpm/internal/train"
	"github.com/born-ml/ddpm/internal/unet"
)

func runSample(args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	checkpoint := fs.String("checkpoint", "", "Checkpoint file written by 'ddpm train' (required)")
	count := fs.Int("n", 16, "Number of images")
	size := fs.Int("size", 28, "Image height and width")
	out := fs.String("out", "samples.png", "Output PNG grid")
	nrow := fs.Int("nrow", 4, "Images per grid row")
	scale := fs.Int("scale", 4, "Nearest-neighbor upscale factor for the PNG")
	device := fs.String("device", "cpu", "Device: cpu or webgpu")
	seed := fs.Uint64("seed", 42, "Random seed")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *checkpoint == "" {
		fs.Usage()
		return errUsage
	}

	logger, err := newLogger(*logFormat, *logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	state, meta, err := serialization.ReadSafeTensors(*checkpoint)
	if err != nil {
		return err
	}
	netCfg, err := train.NetworkConfigFromMetadata(meta)
	if err != nil {
		return err
	}
	sched, err := scheduleFromMetadata(meta)
	if err != nil {
		return err
	}
	net, err := unet.New(netCfg, newRNG(*seed))
	if err != nil {
		return err
	}
	if err := net.LoadStateDict(state); err != nil {
		return err
	}
	logger.Info("checkpoint loaded", "path", *checkpoint, "run_id", meta[train.MetaRunID],
		"epoch", meta[train.MetaEpoch], "features", netCfg.Features, "timesteps", sched.Timesteps())

	dev, release, err := openDevice(*device, logger)
	if err != nil {
		return err
	}
	defer release()

	process := diffusion.New(sched, net, diffusion.Config{Channels: netCfg.InChannels})
	progress := max(sched.Timesteps()/10, 1)
	samples, err := process.SampleWith(dev, *size, *count, newRNG(*seed+1), diffusion.SampleOptions{
		OnStep: func(t int) {
			if t%progress == 0 {
				logger.Info("sampling", "t", t)
			}
		},
	})
	if err != nil {
		return err
	}

	opts := imaging.DefaultGridOptions()
	opts.NRow = *nrow
	grid, err := imaging.MakeGrid(samples, opts)
	if err != nil {
		return err
	}
	img, err := imaging.ToImage(grid)
	if err != nil {
		return err
	}
	if err := imaging.SavePNG(*out, imaging.Upscale(img, *scale)); err != nil {
		return err
	}
	logger.Info("samples written", "path", *out, "count", *count)
	return nil
}

func scheduleFromMetadata(meta map[string]string) (*schedule.Schedule, error) {
	timesteps, err := strconv.Atoi(meta[train.MetaTimesteps])
	if err != nil {
		return nil, fmt.Errorf("checkpoint metadata %s: %w", train.MetaTimesteps, err)
	}
	start, err := strconv.ParseFloat(meta[train.MetaBetaStart], 64)
	if err != nil {
		return nil, fmt.Errorf("checkpoint metadata %s: %w", train.MetaBetaStart, err)
	}
	end, err := strconv.ParseFloat(meta[train.MetaBetaEnd], 64)
	if err != nil {
		return nil, fmt.Errorf("checkpoint metadata %s: %w", train.MetaBetaEnd, err)
	}
	return schedule.New(timesteps, start, end)
}
