package cpu

import (
	"fmt"

	"github.com/born-ml/ddpm/internal/tensor"
)

// PadBottomRight zero-pads the spatial dims of x on the bottom and right so
// the result is [N, C, h, w]. Existing values keep their coordinates.
func (cpu *CPUBackend) PadBottomRight(x *tensor.Tensor, h, w int) *tensor.Tensor {
	s := x.Shape()
	if len(s) != 4 || h < s[2] || w < s[3] {
		panic(fmt.Sprintf("pad: cannot pad %v to %dx%d", s, h, w))
	}
	if h == s[2] && w == s[3] {
		return x
	}
	n, c, srcH, srcW := s[0], s[1], s[2], s[3]
	out := tensor.Zeros(tensor.Shape{n, c, h, w})
	src, dst := x.Data(), out.Data()
	for p := 0; p < n*c; p++ {
		for row := 0; row < srcH; row++ {
			copy(dst[(p*h+row)*w:(p*h+row)*w+srcW], src[(p*srcH+row)*srcW:(p*srcH+row+1)*srcW])
		}
	}
	return out
}

// CropBottomRight is the adjoint of PadBottomRight: it keeps the top-left
// h×w window of every plane.
func (cpu *CPUBackend) CropBottomRight(x *tensor.Tensor, h, w int) *tensor.Tensor {
	s := x.Shape()
	if len(s) != 4 || h > s[2] || w > s[3] {
		panic(fmt.Sprintf("crop: cannot crop %v to %dx%d", s, h, w))
	}
	if h == s[2] && w == s[3] {
		return x
	}
	n, c, srcH, srcW := s[0], s[1], s[2], s[3]
	out := tensor.Zeros(tensor.Shape{n, c, h, w})
	src, dst := x.Data(), out.Data()
	for p := 0; p < n*c; p++ {
		for row := 0; row < h; row++ {
			copy(dst[(p*h+row)*w:(p*h+row+1)*w], src[(p*srcH+row)*srcW:(p*srcH+row)*srcW+w])
		}
	}
	return out
}

// ConcatChannels concatenates a and b along the channel dimension.
// Both must share batch size and spatial dims.
func (cpu *CPUBackend) ConcatChannels(a, b *tensor.Tensor) *tensor.Tensor {
	sa, sb := a.Shape(), b.Shape()
	if len(sa) != 4 || len(sb) != 4 || sa[0] != sb[0] || sa[2] != sb[2] || sa[3] != sb[3] {
		panic(fmt.Sprintf("concat: incompatible shapes %v and %v", sa, sb))
	}
	n, ca, cb, plane := sa[0], sa[1], sb[1], sa[2]*sa[3]
	out := tensor.Zeros(tensor.Shape{n, ca + cb, sa[2], sa[3]})
	dst := out.Data()
	for i := 0; i < n; i++ {
		base := i * (ca + cb) * plane
		copy(dst[base:base+ca*plane], a.Data()[i*ca*plane:(i+1)*ca*plane])
		copy(dst[base+ca*plane:base+(ca+cb)*plane], b.Data()[i*cb*plane:(i+1)*cb*plane])
	}
	return out
}

// SplitChannels is the inverse of ConcatChannels: it returns the first
// split channels and the remainder as separate tensors.
func (cpu *CPUBackend) SplitChannels(x *tensor.Tensor, split int) (first, rest *tensor.Tensor) {
	s := x.Shape()
	if len(s) != 4 || split < 0 || split > s[1] {
		panic(fmt.Sprintf("split: cannot split %v at channel %d", s, split))
	}
	n, c, plane := s[0], s[1], s[2]*s[3]
	first = tensor.Zeros(tensor.Shape{n, split, s[2], s[3]})
	rest = tensor.Zeros(tensor.Shape{n, c - split, s[2], s[3]})
	src := x.Data()
	for i := 0; i < n; i++ {
		base := i * c * plane
		copy(first.Data()[i*split*plane:(i+1)*split*plane], src[base:base+split*plane])
		copy(rest.Data()[i*(c-split)*plane:(i+1)*(c-split)*plane], src[base+split*plane:base+c*plane])
	}
	return first, rest
}
