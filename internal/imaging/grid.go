// Package imaging turns image batches into viewable grids: tiling,
// min-max normalization, conversion to image.Image, captions and PNG
// output.
package imaging

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/tensor"
)

// GridOptions control MakeGrid.
type GridOptions struct {
	NRow      int     // Images per row (default 8)
	Padding   int     // Pixels between and around tiles (default 2)
	Normalize bool    // Min-max scale the whole batch to [0, 1]
	PadValue  float32 // Value of padding pixels
}

// DefaultGridOptions returns 4 images per row with normalization, the
// layout used for epoch-end visualizations.
func DefaultGridOptions() GridOptions {
	return GridOptions{NRow: 4, Padding: 2, Normalize: true}
}

// MakeGrid tiles a [N, C, H, W] batch into one [C, gridH, gridW] image.
//
// Tiles are laid out row-major with min(NRow, N) columns. With Normalize
// set, values are shifted and scaled so the batch minimum maps to 0 and the
// maximum to 1 (a constant batch maps to 0). Padding is applied after
// normalization.
func MakeGrid(batch *tensor.Tensor, opts GridOptions) (*tensor.Tensor, error) {
	n, c, h, w, err := batch.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("imaging: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("imaging: empty batch: %w", tensor.ErrShapeMismatch)
	}
	if opts.NRow <= 0 {
		opts.NRow = 8
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}

	src := batch.Data()
	if opts.Normalize {
		src = normalized(src)
	}

	cols := min(opts.NRow, n)
	rows := (n + cols - 1) / cols
	cellH, cellW := h+opts.Padding, w+opts.Padding
	gridH, gridW := rows*cellH+opts.Padding, cols*cellW+opts.Padding

	grid := tensor.Full(tensor.Shape{c, gridH, gridW}, opts.PadValue)
	dst := grid.Data()
	for k := range n {
		y0 := (k/cols)*cellH + opts.Padding
		x0 := (k%cols)*cellW + opts.Padding
		for ch := range c {
			for y := range h {
				srcRow := ((k*c+ch)*h + y) * w
				dstRow := (ch*gridH+y0+y)*gridW + x0
				copy(dst[dstRow:dstRow+w], src[srcRow:srcRow+w])
			}
		}
	}
	return grid, nil
}

func normalized(src []float32) []float32 {
	lo, hi := src[0], src[0]
	for _, v := range src {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	out := make([]float32, len(src))
	scale := hi - lo
	if scale == 0 {
		return out
	}
	for i, v := range src {
		out[i] = (v - lo) / scale
	}
	return out
}
