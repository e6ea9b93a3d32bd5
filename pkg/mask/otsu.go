package mask

import (
	"slidealign/internal/models"
)

const histogramBins = 256

func quantize(v float64) int {
	b := int(v*float64(histogramBins-1) + 0.5)
	if b < 0 {
		return 0
	}
	if b >= histogramBins {
		return histogramBins - 1
	}
	return b
}

// OtsuThreshold returns the bin that maximises the between-class variance of
// the quantised signal. Pixels in bins above it are foreground. A signal with
// a single populated bin gets the top bin, so nothing is foreground.
func OtsuThreshold(s *Signal) int {
	var hist [histogramBins]float64
	for _, v := range s.Values {
		hist[quantize(v)]++
	}

	total := float64(len(s.Values))
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * c
	}

	best := histogramBins - 1
	bestVar := 0.0
	var wB, sumB float64
	for t := 0; t < histogramBins-1; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = t
		}
	}
	return best
}

// Threshold marks every pixel whose quantised signal is above bin t
func Threshold(s *Signal, t int) *models.Mask {
	m := models.NewMask(s.Width, s.Height)
	for i, v := range s.Values {
		m.Pix[i] = quantize(v) > t
	}
	return m
}
