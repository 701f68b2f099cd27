package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/born-ml/ddpm/internal/serialization"
	"github.com/born-ml/ddpm/internal/tensor"
	"github.com/born-ml/ddpm/internal/unet"
)

// Checkpoint metadata keys.
const (
	MetaRunID       = "run_id"
	MetaEpoch       = "epoch"
	MetaFeatures    = "features"
	MetaInChannels  = "in_channels"
	MetaOutChannels = "out_channels"
	MetaTimesteps   = "timesteps"
	MetaBetaStart   = "beta_start"
	MetaBetaEnd     = "beta_end"
)

// LatestCheckpoint is the file name of the most recent checkpoint.
const LatestCheckpoint = "latest.safetensors"

// Stateful is a network whose weights can be saved and restored.
type Stateful interface {
	StateDict() map[string]*tensor.Tensor
	LoadStateDict(state map[string]*tensor.Tensor) error
}

// NewRunID returns a fresh identifier for a training run.
func NewRunID() string {
	return uuid.NewString()
}

// CheckpointMetadata describes the network and schedule a checkpoint
// belongs to, enough to rebuild both before loading weights.
func CheckpointMetadata(runID string, cfg unet.Config, timesteps int, betaStart, betaEnd float64) map[string]string {
	features := make([]string, len(cfg.Features))
	for i, f := range cfg.Features {
		features[i] = strconv.Itoa(f)
	}
	return map[string]string{
		MetaRunID:       runID,
		MetaFeatures:    strings.Join(features, ","),
		MetaInChannels:  strconv.Itoa(cfg.InChannels),
		MetaOutChannels: strconv.Itoa(cfg.OutChannels),
		MetaTimesteps:   strconv.Itoa(timesteps),
		MetaBetaStart:   strconv.FormatFloat(betaStart, 'g', -1, 64),
		MetaBetaEnd:     strconv.FormatFloat(betaEnd, 'g', -1, 64),
	}
}

// NetworkConfigFromMetadata rebuilds the network config stored by
// CheckpointMetadata.
func NetworkConfigFromMetadata(meta map[string]string) (unet.Config, error) {
	var cfg unet.Config
	var err error
	if cfg.InChannels, err = strconv.Atoi(meta[MetaInChannels]); err != nil {
		return cfg, fmt.Errorf("checkpoint metadata %s: %w", MetaInChannels, err)
	}
	if cfg.OutChannels, err = strconv.Atoi(meta[MetaOutChannels]); err != nil {
		return cfg, fmt.Errorf("checkpoint metadata %s: %w", MetaOutChannels, err)
	}
	for _, s := range strings.Split(meta[MetaFeatures], ",") {
		f, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return cfg, fmt.Errorf("checkpoint metadata %s: %w", MetaFeatures, err)
		}
		cfg.Features = append(cfg.Features, f)
	}
	return cfg, cfg.Validate()
}

// SaveCheckpoint writes the network weights with metadata.
func SaveCheckpoint(path string, net Stateful, meta map[string]string) error {
	if err := serialization.WriteSafeTensors(path, net.StateDict(), meta); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint restores network weights and returns the file metadata.
func LoadCheckpoint(path string, net Stateful) (map[string]string, error) {
	state, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	if err := net.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	return meta, nil
}

// CheckpointCallback saves the network after every epoch to
// Dir/epoch_NNN.safetensors and Dir/latest.safetensors.
type CheckpointCallback struct {
	BaseCallback
	Dir      string
	Net      Stateful
	Metadata map[string]string
	KeepAll  bool // Keep per-epoch files; otherwise only latest is written
}

// NewCheckpointCallback creates a CheckpointCallback writing latest only.
func NewCheckpointCallback(dir string, net Stateful, meta map[string]string) *CheckpointCallback {
	return &CheckpointCallback{Dir: dir, Net: net, Metadata: meta}
}

func (c *CheckpointCallback) OnTrainBegin(*Trainer) error {
	return os.MkdirAll(c.Dir, 0o750)
}

func (c *CheckpointCallback) OnEpochEnd(epoch int, _ EpochStats) error {
	meta := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[MetaEpoch] = strconv.Itoa(epoch)

	if c.KeepAll {
		path := filepath.Join(c.Dir, fmt.Sprintf("epoch_%03d.safetensors", epoch))
		if err := SaveCheckpoint(path, c.Net, meta); err != nil {
			return err
		}
	}
	return SaveCheckpoint(filepath.Join(c.Dir, LatestCheckpoint), c.Net, meta)
}
