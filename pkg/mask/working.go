// Package mask turns slide and composite images into binary tissue masks at a
// bounded working resolution.
package mask

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// WorkingImage is an opaque RGBA copy of an input image, downsampled so its
// longest side fits the working size
type WorkingImage struct {
	Image *image.RGBA

	// NativeWidth and NativeHeight are the dimensions before downsampling
	NativeWidth  int
	NativeHeight int

	// Scale converts working pixels back to native pixels
	Scale float64
}

// Width returns the working width
func (w *WorkingImage) Width() int {
	return w.Image.Bounds().Dx()
}

// Height returns the working height
func (w *WorkingImage) Height() int {
	return w.Image.Bounds().Dy()
}

// boxKernel averages every source pixel under the destination footprint.
// x/image/draw widens the support by the shrink factor when downscaling.
var boxKernel = &draw.Kernel{Support: 0.5, At: func(float64) float64 { return 1 }}

// BackgroundColor maps a profile background name to a color
func BackgroundColor(name string) color.RGBA {
	if name == "black" {
		return color.RGBA{0, 0, 0, 255}
	}
	return color.RGBA{255, 255, 255, 255}
}

// WorkingSize returns the dimensions an image of w x h is reduced to so that
// the longest side is at most maxSide. Images are never upscaled.
func WorkingSize(w, h, maxSide int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if maxSide <= 0 || longest <= maxSide {
		return w, h
	}
	f := float64(maxSide) / float64(longest)
	ww := int(float64(w)*f + 0.5)
	wh := int(float64(h)*f + 0.5)
	if ww < 1 {
		ww = 1
	}
	if wh < 1 {
		wh = 1
	}
	return ww, wh
}

// Prepare flattens any alpha onto bg and area-downsamples the result so its
// longest side is at most maxSide
func Prepare(src image.Image, maxSide int, bg color.RGBA) *WorkingImage {
	sb := src.Bounds()
	w, h := WorkingSize(sb.Dx(), sb.Dy(), maxSide)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		boxKernel.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	return &WorkingImage{
		Image:        dst,
		NativeWidth:  sb.Dx(),
		NativeHeight: sb.Dy(),
		Scale:        float64(sb.Dx()) / float64(w),
	}
}
