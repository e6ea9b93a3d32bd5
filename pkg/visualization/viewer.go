// Package visualization renders debug images of an alignment: masks, a mask
// overlay and the two working images composited at the estimated transform.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"slidealign/internal/models"
)

// Viewer writes debug renderings into a single output directory
type Viewer struct {
	// outputDir receives every saved image
	outputDir string

	// palette for overlays: fixed tissue, moving tissue and their overlap
	fixedColor   colorful.Color
	movingColor  colorful.Color
	overlapColor colorful.Color

	// movingAlpha is the opacity of the moving image in composites
	movingAlpha uint8
}

// NewViewer creates a viewer that saves into outputDir
func NewViewer(outputDir string) *Viewer {
	fixed := colorful.Hsv(215, 0.85, 0.95)
	moving := colorful.Hsv(120, 0.85, 0.85)
	return &Viewer{
		outputDir:    outputDir,
		fixedColor:   fixed,
		movingColor:  moving,
		overlapColor: fixed.BlendLab(moving, 0.5),
		movingAlpha:  140,
	}
}

// OutputDir returns the directory images are saved into
func (v *Viewer) OutputDir() string {
	return v.outputDir
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

// MaskImage renders a mask with tissue in white on black
func (v *Viewer) MaskImage(m *models.Mask) *image.Gray {
	return m.Image()
}

// Overlay paints fixed tissue blue, moving tissue green and the overlap in
// between. Both masks must share a canvas.
func (v *Viewer) Overlay(fixed, moving *models.Mask) (*image.RGBA, error) {
	if fixed.Width != moving.Width || fixed.Height != moving.Height {
		return nil, fmt.Errorf("overlay needs equal sizes, got %dx%d and %dx%d",
			fixed.Width, fixed.Height, moving.Width, moving.Height)
	}

	fc, mc, oc := toRGBA(v.fixedColor), toRGBA(v.movingColor), toRGBA(v.overlapColor)
	img := image.NewRGBA(fixed.Bounds())
	for y := 0; y < fixed.Height; y++ {
		for x := 0; x < fixed.Width; x++ {
			f, m := fixed.At(x, y), moving.At(x, y)
			c := color.RGBA{0, 0, 0, 255}
			switch {
			case f && m:
				c = oc
			case f:
				c = fc
			case m:
				c = mc
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// Annotate draws text lines in the top-left corner of a copy of img
func (v *Viewer) Annotate(img image.Image, lines ...string) image.Image {
	dc := gg.NewContextForImage(img)
	const lineHeight = 15.0
	for i, line := range lines {
		y := 14 + float64(i)*lineHeight
		// dark shadow keeps text readable on white slides
		dc.SetRGB(0, 0, 0)
		dc.DrawString(line, 7, y+1)
		dc.SetRGB(1, 1, 0.4)
		dc.DrawString(line, 6, y)
	}
	return dc.Image()
}

// Composite draws the oriented moving working image over the fixed working
// image, placing moving pixel m at fixed position (m - t) / scale
func (v *Viewer) Composite(fixed, moving *image.RGBA, scale, tx, ty float64) *image.RGBA {
	if scale == 0 {
		scale = 1
	}
	out := image.NewRGBA(fixed.Bounds())
	draw.Draw(out, out.Bounds(), fixed, fixed.Bounds().Min, draw.Src)

	// fade the moving image so the slide shows through
	faded := image.NewNRGBA(moving.Bounds())
	for y := moving.Bounds().Min.Y; y < moving.Bounds().Max.Y; y++ {
		for x := moving.Bounds().Min.X; x < moving.Bounds().Max.X; x++ {
			c := moving.RGBAAt(x, y)
			faded.SetNRGBA(x, y, color.NRGBA{c.R, c.G, c.B, v.movingAlpha})
		}
	}

	s2d := f64.Aff3{
		1 / scale, 0, -tx / scale,
		0, 1 / scale, -ty / scale,
	}
	draw.BiLinear.Transform(out, s2d, faded, faded.Bounds(), draw.Over, nil)
	return out
}

// Save writes img as <outputDir>/<name>.png and returns the path
func (v *Viewer) Save(img image.Image, name string) (string, error) {
	if err := os.MkdirAll(v.outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(v.outputDir, name+".png")
	if err := gg.SavePNG(path, img); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	return path, nil
}

// SaveAll writes a set of named images, stopping at the first failure
func (v *Viewer) SaveAll(images map[string]image.Image) error {
	for name, img := range images {
		if _, err := v.Save(img, name); err != nil {
			return err
		}
	}
	return nil
}
