package orientation

import (
	"image"

	"slidealign/internal/models"
)

// CanvasSize returns the shared dimensions two grids are padded to
func CanvasSize(a, b *models.Mask) (int, int) {
	w, h := a.Width, a.Height
	if b.Width > w {
		w = b.Width
	}
	if b.Height > h {
		h = b.Height
	}
	return w, h
}

// CenterOffset is where a w x h grid lands when centred on a cw x ch canvas
func CenterOffset(w, h, cw, ch int) image.Point {
	return image.Pt((cw-w)/2, (ch-h)/2)
}

// PadTo centres m on a zero-filled cw x ch canvas. The canvas must not be
// smaller than m.
func PadTo(m *models.Mask, cw, ch int) (*models.Mask, image.Point) {
	off := CenterOffset(m.Width, m.Height, cw, ch)
	if cw == m.Width && ch == m.Height {
		return m.Clone(), off
	}
	out := models.NewMask(cw, ch)
	for y := 0; y < m.Height; y++ {
		copy(out.Pix[(y+off.Y)*cw+off.X:(y+off.Y)*cw+off.X+m.Width], m.Pix[y*m.Width:(y+1)*m.Width])
	}
	return out, off
}

// Canvas holds two masks centre-padded to a common size
type Canvas struct {
	Fixed  *models.Mask
	Moving *models.Mask

	// FixedOffset and MovingOffset locate each original grid on the canvas
	FixedOffset  image.Point
	MovingOffset image.Point
}

// Width of the shared canvas
func (c *Canvas) Width() int { return c.Fixed.Width }

// Height of the shared canvas
func (c *Canvas) Height() int { return c.Fixed.Height }

// PadToCanvas centre-aligns fixed and moving on shared dimensions
func PadToCanvas(fixed, moving *models.Mask) *Canvas {
	cw, ch := CanvasSize(fixed, moving)
	f, fo := PadTo(fixed, cw, ch)
	m, mo := PadTo(moving, cw, ch)
	return &Canvas{Fixed: f, Moving: m, FixedOffset: fo, MovingOffset: mo}
}
