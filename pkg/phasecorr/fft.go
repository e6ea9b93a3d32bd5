// Package phasecorr estimates the translation between two equally sized masks
// by phase correlation.
package phasecorr

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fft2D transforms a width x height grid stored row-major. Rows are
// transformed first, then columns. With inverse set the unnormalised
// backward transform is computed instead.
func fft2D(data []complex128, width, height int, inverse bool) []complex128 {
	result := make([]complex128, len(data))
	copy(result, data)

	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		line := result[y*width : (y+1)*width]
		if inverse {
			rowFFT.Sequence(row, line)
		} else {
			rowFFT.Coefficients(row, line)
		}
		copy(line, row)
	}

	colFFT := fourier.NewCmplxFFT(height)
	colIn := make([]complex128, height)
	colOut := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			colIn[y] = result[y*width+x]
		}
		if inverse {
			colFFT.Sequence(colOut, colIn)
		} else {
			colFFT.Coefficients(colOut, colIn)
		}
		for y := 0; y < height; y++ {
			result[y*width+x] = colOut[y]
		}
	}

	return result
}
