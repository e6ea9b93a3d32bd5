package phasecorr

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"slidealign/internal/models"
)

// maxSharpness caps the score of a noiseless correlation surface so it stays
// a finite, serialisable number
const maxSharpness = 1e6

// Estimate is a translation with the quality of the correlation peak behind it
type Estimate struct {
	// DX and DY displace the fixed content onto the moving content
	DX float64
	DY float64

	// Sharpness is (peak - mean) / stddev of the surface away from the peak
	Sharpness float64

	// Peak is the raw correlation maximum
	Peak float64
}

// Options tunes the peak analysis
type Options struct {
	// PeakExclusion is the half-width of the window around the peak that is
	// left out of the sharpness statistics
	PeakExclusion int
}

// DefaultOptions excludes a 5x5 window
var DefaultOptions = Options{PeakExclusion: 2}

// EstimateShift finds the translation that carries fixed onto moving. Both
// masks must share dimensions (see orientation.PadToCanvas).
func EstimateShift(fixed, moving *models.Mask, opts Options) (Estimate, error) {
	if fixed.Width != moving.Width || fixed.Height != moving.Height {
		return Estimate{}, fmt.Errorf("mask sizes differ: %dx%d vs %dx%d", fixed.Width, fixed.Height, moving.Width, moving.Height)
	}
	if fixed.Count() == 0 || moving.Count() == 0 {
		return Estimate{}, fmt.Errorf("cannot correlate an empty mask")
	}

	w, h := fixed.Width, fixed.Height
	surface := Correlate(fixed, moving)

	// locate the integer peak; ties go to the first index
	best := 0
	for i, v := range surface {
		if v > surface[best] {
			best = i
		}
	}
	px, py := best%w, best/w

	ox, oy := subpixelOffset(surface, w, h, px, py)

	dx := float64(px) + ox
	dy := float64(py) + oy
	if px > w/2 {
		dx -= float64(w)
	}
	if py > h/2 {
		dy -= float64(h)
	}

	return Estimate{
		DX:        dx,
		DY:        dy,
		Sharpness: sharpness(surface, w, h, px, py, opts.PeakExclusion),
		Peak:      surface[best],
	}, nil
}

// Correlate returns the real phase correlation surface of two equally sized
// masks. A peak at (x, y) means moving is fixed translated by (x, y), modulo
// the grid size.
func Correlate(fixed, moving *models.Mask) []float64 {
	w, h := fixed.Width, fixed.Height

	ff := fft2D(meanRemoved(fixed), w, h, false)
	fm := fft2D(meanRemoved(moving), w, h, false)

	cross := make([]complex128, len(ff))
	for i := range ff {
		c := cmplx.Conj(ff[i]) * fm[i]
		if mag := cmplx.Abs(c); mag > 1e-12 {
			cross[i] = c / complex(mag, 0)
		}
	}

	inv := fft2D(cross, w, h, true)
	n := float64(w * h)
	out := make([]float64, len(inv))
	for i, v := range inv {
		out[i] = real(v) / n
	}
	return out
}

func meanRemoved(m *models.Mask) []complex128 {
	mean := m.Coverage()
	out := make([]complex128, len(m.Pix))
	for i, v := range m.Pix {
		f := -mean
		if v {
			f = 1 - mean
		}
		out[i] = complex(f, 0)
	}
	return out
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// subpixelOffset fits a 2-D quadratic to the 3x3 neighbourhood of the peak.
// When the fit is not a proper maximum it falls back to independent 1-D
// parabolas. Offsets are clamped to half a pixel.
func subpixelOffset(s []float64, w, h, px, py int) (float64, float64) {
	at := func(dx, dy int) float64 {
		return s[wrap(py+dy, h)*w+wrap(px+dx, w)]
	}

	if w >= 3 && h >= 3 {
		a := mat.NewDense(9, 6, nil)
		b := mat.NewVecDense(9, nil)
		row := 0
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				x, y := float64(dx), float64(dy)
				a.SetRow(row, []float64{1, x, y, x * x, x * y, y * y})
				b.SetVec(row, at(dx, dy))
				row++
			}
		}

		var coef mat.VecDense
		if err := coef.SolveVec(a, b); err == nil {
			cx, cy := coef.AtVec(1), coef.AtVec(2)
			cxx, cxy, cyy := coef.AtVec(3), coef.AtVec(4), coef.AtVec(5)
			det := 4*cxx*cyy - cxy*cxy
			if cxx < 0 && det > 0 {
				ox := (-2*cyy*cx + cxy*cy) / det
				oy := (-2*cxx*cy + cxy*cx) / det
				if !math.IsNaN(ox) && !math.IsNaN(oy) {
					return clampHalf(ox), clampHalf(oy)
				}
			}
		}
	}

	return clampHalf(parabolic(at(-1, 0), at(0, 0), at(1, 0))), clampHalf(parabolic(at(0, -1), at(0, 0), at(0, 1)))
}

func parabolic(l, c, r float64) float64 {
	den := l - 2*c + r
	if den >= 0 {
		return 0
	}
	return 0.5 * (l - r) / den
}

func clampHalf(v float64) float64 {
	return math.Max(-0.5, math.Min(0.5, v))
}

func sharpness(s []float64, w, h, px, py, exclusion int) float64 {
	rest := make([]float64, 0, len(s))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if circDist(x, px, w) <= exclusion && circDist(y, py, h) <= exclusion {
				continue
			}
			rest = append(rest, s[y*w+x])
		}
	}
	if len(rest) < 2 {
		return 0
	}

	mean, std := stat.MeanStdDev(rest, nil)
	peak := s[py*w+px]
	if std < 1e-12 {
		if peak > mean {
			return maxSharpness
		}
		return 0
	}
	return math.Min((peak-mean)/std, maxSharpness)
}

func circDist(a, b, n int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if n-d < d {
		return n - d
	}
	return d
}
