package models

import (
	"errors"
	"fmt"
)

// ErrRefinementNonConvergence is returned when local refinement reaches its
// iteration cap while still improving.
var ErrRefinementNonConvergence = errors.New("refinement did not converge")

// InputMissingError reports that one side of a pair has no file
type InputMissingError struct {
	ID   string
	Side Side
	Path string
}

func (e *InputMissingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: no %s image found", e.ID, e.Side)
	}
	return fmt.Sprintf("%s: %s image missing: %s", e.ID, e.Side, e.Path)
}

// MaskExtractionError reports a degenerate tissue mask (empty or
// near-total foreground), which means thresholding failed.
type MaskExtractionError struct {
	ID       string
	Side     Side
	Coverage float64
	Reason   string
}

func (e *MaskExtractionError) Error() string {
	return fmt.Sprintf("%s: %s mask extraction failed: %s (coverage %.4f)", e.ID, e.Side, e.Reason, e.Coverage)
}
