package models

// Side names one half of a matched pair
type Side string

const (
	Fixed  Side = "fixed"
	Moving Side = "moving"
)

// Pair identifies one fixed/moving image pair sharing an identifier
type Pair struct {
	// ID is the shared identifier (filename stem)
	ID string

	// FixedPath is the whole-slide reference image
	FixedPath string

	// MovingPath is the composite image to be aligned onto the slide
	MovingPath string
}
