// Package main provides the ddpm CLI: train a diffusion model on MNIST or
// synthetic digits, and sample images from a checkpoint.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "sample":
		err = runSample(os.Args[2:])
	case "version":
		fmt.Printf("ddpm %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		slog.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("ddpm - denoising diffusion for grayscale images")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  train      Train the U-Net noise predictor")
	fmt.Println("  sample     Generate images from a checkpoint")
	fmt.Println("  version    Show version")
	fmt.Println("")
	fmt.Println("Run 'ddpm <command> -h' for command flags.")
}
