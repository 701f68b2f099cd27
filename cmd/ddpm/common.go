package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/ddpm/internal/backend/cpu"
	"github.com/born-ml/ddpm/internal/backend/webgpu"
	"github.com/born-ml/ddpm/internal/diffusion"
)

// errUsage marks flag parsing failures already reported by the flag package.
var errUsage = errors.New("usage")

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return flag.ErrHelp
		}
		return errUsage
	}
	return nil
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q (want text or json)", format)
	}
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// openDevice returns the named device and its release function.
func openDevice(name string, logger *slog.Logger) (diffusion.Device, func(), error) {
	switch strings.ToLower(name) {
	case "cpu":
		return cpu.New(), func() {}, nil
	case "webgpu":
		gpu, err := webgpu.New()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using GPU device", "name", gpu.Name())
		return gpu, gpu.Release, nil
	default:
		return nil, nil, fmt.Errorf("unknown device %q (want cpu or webgpu)", name)
	}
}

func parseFeatures(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	features := make([]int, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("features %q: %w", s, err)
		}
		features = append(features, f)
	}
	return features, nil
}
