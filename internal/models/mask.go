package models

import (
	"image"
)

// Mask is a binary tissue-vs-background grid at working resolution.
// Pixels are stored row-major; true marks tissue.
type Mask struct {
	// Width and Height are the grid dimensions in working pixels
	Width  int
	Height int

	// Pix holds Width*Height foreground flags
	Pix []bool
}

// NewMask allocates an empty (all background) mask
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]bool, width*height),
	}
}

// At reports whether (x, y) is foreground. Out-of-bounds reads are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set marks (x, y) as foreground or background
func (m *Mask) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Bounds returns the mask extent as an image rectangle
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Count returns the number of foreground pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Coverage is the foreground fraction of the whole grid
func (m *Mask) Coverage() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	return float64(m.Count()) / float64(len(m.Pix))
}

// Centroid returns the mean foreground coordinate, and false for an empty mask
func (m *Mask) Centroid() (float64, float64, bool) {
	var sx, sy float64
	n := 0
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v {
				sx += float64(x)
				sy += float64(y)
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	return sx / float64(n), sy / float64(n), true
}

// Clone returns a deep copy
func (m *Mask) Clone() *Mask {
	c := NewMask(m.Width, m.Height)
	copy(c.Pix, m.Pix)
	return c
}

// Equal reports bit-identical masks
func (m *Mask) Equal(o *Mask) bool {
	if o == nil || m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i, v := range m.Pix {
		if o.Pix[i] != v {
			return false
		}
	}
	return true
}

// Image renders the mask as an 8-bit grayscale image (tissue white)
func (m *Mask) Image() *image.Gray {
	img := image.NewGray(m.Bounds())
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 0xff
		}
	}
	return img
}
