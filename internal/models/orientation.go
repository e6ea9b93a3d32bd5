package models

import (
	"fmt"
)

// Orientation is one discrete orientation hypothesis: rotate the moving
// image counter-clockwise (as displayed, y pointing down) by Rotation
// degrees, then mirror left/right if FlipX, then top/bottom if FlipY.
type Orientation struct {
	Rotation int  `json:"rotation" yaml:"rotation"`
	FlipX    bool `json:"flipX" yaml:"flipX"`
	FlipY    bool `json:"flipY" yaml:"flipY"`
}

// Rotations lists the allowed rotation values in degrees
var Rotations = []int{0, 90, 180, 270}

// Identity is the no-op orientation
var Identity = Orientation{}

// AllOrientations returns the 16 rotation x flip combinations in a fixed order
func AllOrientations() []Orientation {
	out := make([]Orientation, 0, 16)
	for _, r := range Rotations {
		for _, fx := range []bool{false, true} {
			for _, fy := range []bool{false, true} {
				out = append(out, Orientation{Rotation: r, FlipX: fx, FlipY: fy})
			}
		}
	}
	return out
}

// Valid reports whether the rotation is a multiple of 90 in [0, 360)
func (o Orientation) Valid() bool {
	switch o.Rotation {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// Flips counts the mirror operations in the hypothesis
func (o Orientation) Flips() int {
	n := 0
	if o.FlipX {
		n++
	}
	if o.FlipY {
		n++
	}
	return n
}

// PreferredOver implements the identity-closest tie-break: rotation 0 first,
// then fewer flips, then lower rotation, then flipX before flipY.
func (o Orientation) PreferredOver(p Orientation) bool {
	oz, pz := o.Rotation != 0, p.Rotation != 0
	if oz != pz {
		return !oz
	}
	if o.Flips() != p.Flips() {
		return o.Flips() < p.Flips()
	}
	if o.Rotation != p.Rotation {
		return o.Rotation < p.Rotation
	}
	if o.FlipY != p.FlipY {
		return !o.FlipY
	}
	return !o.FlipX && p.FlipX
}

func (o Orientation) String() string {
	return fmt.Sprintf("rot=%d flipX=%t flipY=%t", o.Rotation, o.FlipX, o.FlipY)
}

// ScoredOrientation is a hypothesis with its similarity score. Rank is the
// zero-based position in the best-first ordering.
type ScoredOrientation struct {
	Orientation
	Score float64
	Rank  int
}
