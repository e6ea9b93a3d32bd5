package mask

import (
	"image"

	"slidealign/internal/models"
	"slidealign/pkg/config"
)

// Extractor turns images into tissue masks for one side of a pair
type Extractor struct {
	Side        models.Side
	Profile     config.MaskProfile
	WorkingSize int
	MaxCoverage float64
}

// NewExtractor builds an extractor for a side from the loaded configuration
func NewExtractor(cfg *config.Config, side models.Side) *Extractor {
	profile := cfg.Mask.Fixed
	if side == models.Moving {
		profile = cfg.Mask.Moving
	}
	return &Extractor{
		Side:        side,
		Profile:     profile,
		WorkingSize: cfg.Processing.WorkingSize,
		MaxCoverage: cfg.Mask.MaxCoverage,
	}
}

// Result bundles everything extraction produced for one image
type Result struct {
	Working   *WorkingImage
	Mask      *models.Mask
	Threshold int
	Polarity  string
}

// Extract downsamples img, thresholds its tissue signal and cleans the mask up.
// Degenerate masks (empty or near-total) fail with a MaskExtractionError.
func (e *Extractor) Extract(id string, img image.Image) (*Result, error) {
	work := Prepare(img, e.WorkingSize, BackgroundColor(e.Profile.Background))
	polarity := ResolvePolarity(work.Image, e.Profile.Polarity)
	signal := Project(work.Image, e.Profile.Projection, polarity)

	t := OtsuThreshold(signal)
	m := Threshold(signal, t)

	if e.Profile.DilateRadius > 0 {
		m = Dilate(m, e.Profile.DilateRadius)
	}
	m = Close(m, e.Profile.CloseRadius)
	m = Open(m, e.Profile.OpenRadius)

	maxCov := e.MaxCoverage
	if maxCov <= 0 {
		maxCov = 0.99
	}
	cov := m.Coverage()
	if m.Count() == 0 {
		return nil, &models.MaskExtractionError{ID: id, Side: e.Side, Coverage: cov, Reason: "no foreground"}
	}
	if cov >= maxCov {
		return nil, &models.MaskExtractionError{ID: id, Side: e.Side, Coverage: cov, Reason: "foreground covers the whole image"}
	}

	return &Result{Working: work, Mask: m, Threshold: t, Polarity: polarity}, nil
}

// ExtractMask is Extract without the intermediate products
func (e *Extractor) ExtractMask(img image.Image) (*models.Mask, error) {
	r, err := e.Extract("", img)
	if err != nil {
		return nil, err
	}
	return r.Mask, nil
}
