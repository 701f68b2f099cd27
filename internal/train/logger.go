package train

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/born-ml/ddpm/internal/imaging"
	"github.com/born-ml/ddpm/internal/tensor"
)

// Logger records training scalars and image grids.
//
// Grids are [C, H, W] tensors with values in [0, 1], as produced by
// imaging.MakeGrid with normalization.
type Logger interface {
	LogScalar(name string, value float64, step int) error
	LogImage(name string, grid *tensor.Tensor, step int) error
}

// MultiLogger fans every call out to several loggers.
type MultiLogger []Logger

func (m MultiLogger) LogScalar(name string, value float64, step int) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.LogScalar(name, value, step))
	}
	return errors.Join(errs...)
}

func (m MultiLogger) LogImage(name string, grid *tensor.Tensor, step int) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.LogImage(name, grid, step))
	}
	return errors.Join(errs...)
}

// CSVLogger appends scalars to a CSV file with columns name, step, value.
// Images are ignored.
type CSVLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVLogger creates (or truncates) path and writes the header row.
func NewCSVLogger(path string) (*CSVLogger, error) {
	//nolint:gosec // G304: log path is user-chosen
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv logger: %w", err)
	}
	w := csv.NewWriter(file)
	if err := w.Write([]string{"name", "step", "value"}); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("csv logger: %w", err)
	}
	w.Flush()
	return &CSVLogger{file: file, writer: w}, nil
}

func (c *CSVLogger) LogScalar(name string, value float64, step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return errors.New("csv logger: closed")
	}
	record := []string{name, strconv.Itoa(step), strconv.FormatFloat(value, 'g', 8, 64)}
	if err := c.writer.Write(record); err != nil {
		return fmt.Errorf("csv logger: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *CSVLogger) LogImage(string, *tensor.Tensor, int) error { return nil }

// Close flushes and closes the file.
func (c *CSVLogger) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	c.writer.Flush()
	err := errors.Join(c.writer.Error(), c.file.Close())
	c.file, c.writer = nil, nil
	return err
}

// ImageDirLogger writes each grid as a captioned PNG under
// Dir/<name>/step_NNNN.png. Scalars are ignored.
type ImageDirLogger struct {
	Dir   string
	Scale int // Nearest-neighbor upscale factor (values below 2 keep the size)
}

// NewImageDirLogger creates the root directory.
func NewImageDirLogger(dir string, scale int) (*ImageDirLogger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("image logger: %w", err)
	}
	return &ImageDirLogger{Dir: dir, Scale: scale}, nil
}

func (l *ImageDirLogger) LogScalar(string, float64, int) error { return nil }

func (l *ImageDirLogger) LogImage(name string, grid *tensor.Tensor, step int) error {
	img, err := imaging.ToImage(grid)
	if err != nil {
		return fmt.Errorf("image logger: %s: %w", name, err)
	}
	img = imaging.Caption(imaging.Upscale(img, l.Scale), fmt.Sprintf("%s  step %d", name, step))

	dir := filepath.Join(l.Dir, slug(name))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("image logger: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("step_%04d.png", step))
	if err := imaging.SavePNG(path, img); err != nil {
		return fmt.Errorf("image logger: %s: %w", path, err)
	}
	return nil
}

// slug turns "Denoised Images" into "denoised_images".
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}

// SlogLogger writes scalars and image events as structured log lines.
type SlogLogger struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (s SlogLogger) LogScalar(name string, value float64, step int) error {
	s.logger().Log(context.Background(), s.Level, "scalar", "name", name, "value", value, "step", step)
	return nil
}

func (s SlogLogger) LogImage(name string, grid *tensor.Tensor, step int) error {
	s.logger().Log(context.Background(), s.Level, "image", "name", name, "shape", grid.Shape(), "step", step)
	return nil
}

func (s SlogLogger) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
