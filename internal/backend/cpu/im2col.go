package cpu

// im2col unfolds one image [C, H, W] into columns [C*K*K, HOut*WOut].
//
// Row r = (c*K + kh)*K + kw holds, for every output position (oh, ow), the
// input value at (oh*stride - padding + kh, ow*stride - padding + kw), or
// zero when that falls in the padding.
//
// This layout lets a convolution be written as one GEMM:
//
//	out[C_out, HOut*WOut] = kernel[C_out, C*K*K] @ col[C*K*K, HOut*WOut]
func im2col(col, img []float32, c, h, w, k, stride, padding, hOut, wOut int) {
	plane := hOut * wOut
	for ci := 0; ci < c; ci++ {
		imgPlane := img[ci*h*w : (ci+1)*h*w]
		for kh := 0; kh < k; kh++ {
			for kw := 0; kw < k; kw++ {
				row := ((ci*k+kh)*k + kw) * plane
				dst := col[row : row+plane]
				for oh := 0; oh < hOut; oh++ {
					ih := oh*stride - padding + kh
					dstRow := dst[oh*wOut : (oh+1)*wOut]
					if ih < 0 || ih >= h {
						clear(dstRow)
						continue
					}
					srcRow := imgPlane[ih*w : (ih+1)*w]
					for ow := range dstRow {
						iw := ow*stride - padding + kw
						if iw >= 0 && iw < w {
							dstRow[ow] = srcRow[iw]
						} else {
							dstRow[ow] = 0
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it scatters columns [C*K*K, HOut*WOut]
// back into an image [C, H, W], accumulating overlapping contributions.
// img is cleared first.
func col2im(img, col []float32, c, h, w, k, stride, padding, hOut, wOut int) {
	clear(img)
	plane := hOut * wOut
	for ci := 0; ci < c; ci++ {
		imgPlane := img[ci*h*w : (ci+1)*h*w]
		for kh := 0; kh < k; kh++ {
			for kw := 0; kw < k; kw++ {
				row := ((ci*k+kh)*k + kw) * plane
				src := col[row : row+plane]
				for oh := 0; oh < hOut; oh++ {
					ih := oh*stride - padding + kh
					if ih < 0 || ih >= h {
						continue
					}
					dstRow := imgPlane[ih*w : (ih+1)*w]
					srcRow := src[oh*wOut : (oh+1)*wOut]
					for ow, v := range srcRow {
						iw := ow*stride - padding + kw
						if iw >= 0 && iw < w {
							dstRow[iw] += v
						}
					}
				}
			}
		}
	}
}
