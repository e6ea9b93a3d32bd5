package mask

import (
	"slidealign/internal/models"
)

// Morphology uses a (2r+1)x(2r+1) square structuring element, applied as two
// separable 1-D passes with running window counts. Dilation treats pixels
// outside the grid as background and erosion treats them as foreground, so
// closing does not eat into tissue touching the border.

// Dilate grows foreground by r pixels in every direction
func Dilate(m *models.Mask, r int) *models.Mask {
	if r <= 0 {
		return m.Clone()
	}
	return pass(pass(m, r, true, false), r, false, false)
}

// Erode shrinks foreground by r pixels in every direction
func Erode(m *models.Mask, r int) *models.Mask {
	if r <= 0 {
		return m.Clone()
	}
	return pass(pass(m, r, true, true), r, false, true)
}

// Close fills gaps narrower than the structuring element
func Close(m *models.Mask, r int) *models.Mask {
	return Erode(Dilate(m, r), r)
}

// Open removes specks smaller than the structuring element
func Open(m *models.Mask, r int) *models.Mask {
	return Dilate(Erode(m, r), r)
}

// pass runs one 1-D window along rows (horizontal) or columns. For erosion it
// counts background pixels and keeps a pixel only when none fall in the window.
func pass(m *models.Mask, r int, horizontal, erode bool) *models.Mask {
	out := models.NewMask(m.Width, m.Height)

	lines, length := m.Height, m.Width
	if !horizontal {
		lines, length = m.Width, m.Height
	}
	idx := func(line, i int) int {
		if horizontal {
			return line*m.Width + i
		}
		return i*m.Width + line
	}
	hit := func(v bool) bool {
		return v != erode
	}

	for line := 0; line < lines; line++ {
		count := 0
		// prime the window [-r, r] around i=0
		for i := 0; i <= r && i < length; i++ {
			if hit(m.Pix[idx(line, i)]) {
				count++
			}
		}
		for i := 0; i < length; i++ {
			if erode {
				out.Pix[idx(line, i)] = count == 0
			} else {
				out.Pix[idx(line, i)] = count > 0
			}
			if enter := i + r + 1; enter < length && hit(m.Pix[idx(line, enter)]) {
				count++
			}
			if leave := i - r; leave >= 0 && hit(m.Pix[idx(line, leave)]) {
				count--
			}
		}
	}
	return out
}
