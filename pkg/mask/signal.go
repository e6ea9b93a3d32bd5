package mask

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"slidealign/pkg/config"
)

// Signal is a per-pixel tissue likelihood in [0, 1], row-major
type Signal struct {
	Width  int
	Height int
	Values []float64
}

func luminance(c color.RGBA) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255.0
}

func saturation(c color.RGBA) float64 {
	col, _ := colorful.MakeColor(c)
	_, s, _ := col.Hsv()
	return s
}

// BorderLuminance returns the mean luminance of the outer bands of img
func BorderLuminance(img *image.RGBA) float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	short := w
	if h < short {
		short = h
	}
	band := int(math.Max(5, float64(short)*0.02))
	if band*2 > short {
		band = (short + 1) / 2
	}

	var sum float64
	n := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= band && x < w-band && y >= band && y < h-band {
				continue
			}
			sum += luminance(img.RGBAAt(x, y))
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// ResolvePolarity turns "auto" into bright or dark from the border bands
func ResolvePolarity(img *image.RGBA, polarity string) string {
	if polarity != config.PolarityAuto {
		return polarity
	}
	if BorderLuminance(img) >= 0.5 {
		return config.PolarityBright
	}
	return config.PolarityDark
}

// Project computes the tissue signal for an opaque working image. Polarity
// must already be resolved to bright or dark.
func Project(img *image.RGBA, projection, polarity string) *Signal {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := &Signal{Width: w, Height: h, Values: make([]float64, w*h)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x+img.Rect.Min.X, y+img.Rect.Min.Y)

			lum := luminance(c)
			if polarity == config.PolarityBright {
				lum = 1 - lum
			}

			var v float64
			switch projection {
			case config.ProjectionLuminance:
				v = lum
			case config.ProjectionSaturation:
				v = saturation(c)
			default:
				v = math.Max(lum, saturation(c))
			}
			out.Values[y*w+x] = v
		}
	}
	return out
}
