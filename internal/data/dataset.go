// Package data loads training images for the diffusion model: MNIST in
// IDX format or a synthetic digit-like set, normalized to [-1, 1] and
// served in shuffled batches.
package data

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
)

// ErrInvalidIDX is returned for files that are not IDX image/label files.
var ErrInvalidIDX = errors.New("data: invalid idx file")

// Dataset holds single-channel images normalized to [-1, 1].
type Dataset struct {
	Images [][]float32 // [num_samples, rows*cols]
	Labels []int       // [num_samples]
	Rows   int
	Cols   int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Images)
}

// Normalize maps a pixel in [0, 255] to [-1, 1], the equivalent of
// ToTensor followed by Normalize(mean=0.5, std=0.5).
func Normalize(pixel byte) float32 {
	return float32(pixel)/127.5 - 1
}

// LoadMNIST loads MNIST from the official IDX files in dataDir.
//
// Expected files in dataDir:
//   - train-images-idx3-ubyte (or t10k-images-idx3-ubyte for test)
//   - train-labels-idx1-ubyte (or t10k-labels-idx1-ubyte for test)
//
// maxSamples limits the number of samples loaded (0 = load all).
func LoadMNIST(dataDir string, train bool, maxSamples int) (*Dataset, error) {
	prefix := "t10k"
	if train {
		prefix = "train"
	}

	imagesRaw, rows, cols, err := readIDXImagesFile(filepath.Join(dataDir, prefix+"-images-idx3-ubyte"))
	if err != nil {
		return nil, fmt.Errorf("data: failed to load images: %w", err)
	}
	labelsRaw, err := readIDXLabelsFile(filepath.Join(dataDir, prefix+"-labels-idx1-ubyte"))
	if err != nil {
		return nil, fmt.Errorf("data: failed to load labels: %w", err)
	}
	if len(imagesRaw) != len(labelsRaw) {
		return nil, fmt.Errorf("%w: image count (%d) != label count (%d)", ErrInvalidIDX, len(imagesRaw), len(labelsRaw))
	}

	n := len(imagesRaw)
	if maxSamples > 0 && n > maxSamples {
		n = maxSamples
	}

	ds := &Dataset{
		Images: make([][]float32, n),
		Labels: make([]int, n),
		Rows:   rows,
		Cols:   cols,
	}
	for i := 0; i < n; i++ {
		img := make([]float32, rows*cols)
		for j, p := range imagesRaw[i] {
			img[j] = Normalize(p)
		}
		ds.Images[i] = img
		ds.Labels[i] = int(labelsRaw[i])
	}
	return ds, nil
}

// Synthetic creates n size×size images of simple stroke patterns, one of
// ten shapes per label, with jittered position. Used when no MNIST files
// are available.
func Synthetic(n, size int, rng *rand.Rand) *Dataset {
	ds := &Dataset{
		Images: make([][]float32, n),
		Labels: make([]int, n),
		Rows:   size,
		Cols:   size,
	}
	for i := range n {
		label := i % 10
		pixels := make([]byte, size*size)
		drawDigit(pixels, size, label, rng.IntN(3)-1, rng.IntN(3)-1)

		img := make([]float32, size*size)
		for j, p := range pixels {
			img[j] = Normalize(p)
		}
		ds.Images[i] = img
		ds.Labels[i] = label
	}
	return ds
}

// drawDigit paints a seven-segment style glyph for label into a size×size
// canvas, shifted by (dx, dy).
func drawDigit(pixels []byte, size, label, dx, dy int) {
	// Segments: top, upper-left, upper-right, middle, lower-left, lower-right, bottom.
	segments := [10][7]bool{
		{true, true, true, false, true, true, true},     // 0
		{false, false, true, false, false, true, false}, // 1
		{true, false, true, true, true, false, true},    // 2
		{true, false, true, true, false, true, true},    // 3
		{false, true, true, true, false, true, false},   // 4
		{true, true, false, true, false, true, true},    // 5
		{true, true, false, true, true, true, true},     // 6
		{true, false, true, false, false, true, false},  // 7
		{true, true, true, true, true, true, true},      // 8
		{true, true, true, true, false, true, true},     // 9
	}

	left, right := size/4+dx, size-size/4-1+dx
	top, bottom := size/6+dy, size-size/6-1+dy
	mid := (top + bottom) / 2
	thick := max(size/14, 1)

	hline := func(y int) {
		for t := 0; t < thick; t++ {
			for x := left; x <= right; x++ {
				set(pixels, size, x, y+t)
			}
		}
	}
	vline := func(x, y0, y1 int) {
		for t := 0; t < thick; t++ {
			for y := y0; y <= y1; y++ {
				set(pixels, size, x+t, y)
			}
		}
	}

	s := segments[label]
	if s[0] {
		hline(top)
	}
	if s[1] {
		vline(left, top, mid)
	}
	if s[2] {
		vline(right-thick+1, top, mid)
	}
	if s[3] {
		hline(mid)
	}
	if s[4] {
		vline(left, mid, bottom)
	}
	if s[5] {
		vline(right-thick+1, mid, bottom)
	}
	if s[6] {
		hline(bottom - thick + 1)
	}
}

func set(pixels []byte, size, x, y int) {
	if x >= 0 && x < size && y >= 0 && y < size {
		pixels[y*size+x] = 255
	}
}
