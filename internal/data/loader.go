package data

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/ddpm/internal/tensor"
)

// Batch is one mini-batch of images [N, 1, rows, cols] with their labels.
type Batch struct {
	Images *tensor.Tensor
	Labels []int
}

// Loader serves a dataset in mini-batches. The last batch may be smaller.
//
// Usage:
//
//	loader.Reset()
//	for batch, ok := loader.Next(); ok; batch, ok = loader.Next() {
//	    ...
//	}
type Loader struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
}

// NewLoader creates a loader. When shuffle is set, every Reset draws a new
// permutation from rng.
func NewLoader(ds *Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("data: batch size must be positive, got %d", batchSize)
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("data: empty dataset")
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("data: shuffling loader needs a random source")
	}
	l := &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		order:     make([]int, ds.Len()),
	}
	l.Reset()
	return l, nil
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Reset starts a new epoch.
func (l *Loader) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Next returns the next batch of the epoch, or false when exhausted.
func (l *Loader) Next() (Batch, bool) {
	if l.pos >= len(l.order) {
		return Batch{}, false
	}
	end := min(l.pos+l.batchSize, len(l.order))
	idx := l.order[l.pos:end]
	l.pos = end

	plane := l.ds.Rows * l.ds.Cols
	images := tensor.Zeros(tensor.Shape{len(idx), 1, l.ds.Rows, l.ds.Cols})
	labels := make([]int, len(idx))
	for i, j := range idx {
		copy(images.Data()[i*plane:(i+1)*plane], l.ds.Images[j])
		labels[i] = l.ds.Labels[j]
	}
	return Batch{Images: images, Labels: labels}, true
}

// First returns the first batch of a fresh epoch without disturbing the
// current position, in dataset order.
func (l *Loader) First() Batch {
	saved := l.pos
	savedOrder := l.order
	l.order = make([]int, min(l.batchSize, l.ds.Len()))
	for i := range l.order {
		l.order[i] = i
	}
	l.pos = 0
	batch, _ := l.Next()
	l.order, l.pos = savedOrder, saved
	return batch
}
