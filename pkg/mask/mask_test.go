package mask

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"slidealign/internal/models"
	"slidealign/pkg/config"
)

// createSlideImage draws a pink tissue rectangle on white glass
func createSlideImage(w, h int, tissue image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if (image.Point{x, y}).In(tissue) {
				c = color.RGBA{230, 150, 190, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// createCompositeImage scatters bright cell dots over a block on black
func createCompositeImage(w, h int, block image.Rectangle, spacing int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if (image.Point{x, y}).In(block) && x%spacing == 0 && y%spacing == 0 {
				c = color.RGBA{0, 200, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func testExtractor(side models.Side) *Extractor {
	cfg := config.DefaultConfig()
	return NewExtractor(cfg, side)
}

func TestWorkingSize(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
	}{
		{2048, 1024, 1024, 1024, 512},
		{500, 300, 1024, 500, 300},
		{1000, 3000, 1024, 341, 1024},
		{10, 10, 0, 10, 10},
	}
	for _, tt := range tests {
		gw, gh := WorkingSize(tt.w, tt.h, tt.limit)
		if gw != tt.wantW || gh != tt.wantH {
			t.Errorf("WorkingSize(%d,%d,%d): expected %dx%d, got %dx%d", tt.w, tt.h, tt.limit, tt.wantW, tt.wantH, gw, gh)
		}
	}
}

func TestPrepareDownsamplesAndAverages(t *testing.T) {
	// 2x2 checkerboard of black and white averages to mid gray
	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			src.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}

	w := Prepare(src, 16, BackgroundColor("white"))
	if w.Width() != 16 || w.Height() != 8 {
		t.Fatalf("Expected 16x8, got %dx%d", w.Width(), w.Height())
	}
	if w.Scale != 4 {
		t.Errorf("Expected scale 4, got %g", w.Scale)
	}
	if w.NativeWidth != 64 || w.NativeHeight != 32 {
		t.Errorf("Expected native 64x32, got %dx%d", w.NativeWidth, w.NativeHeight)
	}

	c := w.Image.RGBAAt(8, 4)
	if math.Abs(float64(c.R)-127.5) > 3 {
		t.Errorf("Expected area average near 128, got %d", c.R)
	}
}

func TestPrepareFlattensAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	src.SetNRGBA(5, 5, color.NRGBA{255, 0, 0, 255})

	w := Prepare(src, 1024, BackgroundColor("white"))
	if got := w.Image.RGBAAt(0, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected transparent pixel flattened to white, got %v", got)
	}
	if got := w.Image.RGBAAt(5, 5); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("Expected opaque pixel kept, got %v", got)
	}

	b := Prepare(src, 1024, BackgroundColor("black"))
	if got := b.Image.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("Expected transparent pixel flattened to black, got %v", got)
	}
}

func TestResolvePolarity(t *testing.T) {
	white := createSlideImage(100, 100, image.Rect(30, 30, 70, 70))
	if got := ResolvePolarity(white, config.PolarityAuto); got != config.PolarityBright {
		t.Errorf("Expected bright polarity for white border, got %s", got)
	}
	black := createCompositeImage(100, 100, image.Rect(30, 30, 70, 70), 3)
	if got := ResolvePolarity(black, config.PolarityAuto); got != config.PolarityDark {
		t.Errorf("Expected dark polarity for black border, got %s", got)
	}
	if got := ResolvePolarity(black, config.PolarityBright); got != config.PolarityBright {
		t.Errorf("Explicit polarity should be kept, got %s", got)
	}
}

func TestOtsuThresholdBimodal(t *testing.T) {
	s := &Signal{Width: 10, Height: 10, Values: make([]float64, 100)}
	for i := range s.Values {
		s.Values[i] = 0.2
		if i >= 60 {
			s.Values[i] = 0.8
		}
	}
	th := OtsuThreshold(s)
	if th < quantize(0.2) || th >= quantize(0.8) {
		t.Errorf("Expected threshold between the modes, got %d", th)
	}
	m := Threshold(s, th)
	if m.Count() != 40 {
		t.Errorf("Expected 40 foreground pixels, got %d", m.Count())
	}
}

func TestOtsuThresholdUniform(t *testing.T) {
	s := &Signal{Width: 4, Height: 4, Values: make([]float64, 16)}
	if m := Threshold(s, OtsuThreshold(s)); m.Count() != 0 {
		t.Errorf("Expected empty mask for a uniform signal, got %d", m.Count())
	}
}

func TestMorphology(t *testing.T) {
	m := models.NewMask(9, 9)
	m.Set(4, 4, true)

	d := Dilate(m, 1)
	if d.Count() != 9 {
		t.Errorf("Expected 3x3 block after dilation, got %d pixels", d.Count())
	}
	if e := Erode(d, 1); !e.Equal(m) {
		t.Error("Expected erosion to undo dilation of a single pixel")
	}
	if o := Open(m, 1); o.Count() != 0 {
		t.Errorf("Expected opening to remove an isolated pixel, got %d", o.Count())
	}

	// Two blocks separated by a 1px gap merge under closing
	g := models.NewMask(14, 8)
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			g.Set(x, y, true)
			g.Set(x+5, y, true)
		}
	}
	c := Close(g, 1)
	if !c.At(6, 3) {
		t.Error("Expected closing to fill the gap")
	}
	if c.Count() != 4*9 {
		t.Errorf("Expected merged 9x4 block, got %d pixels", c.Count())
	}
}

func TestErosionKeepsBorderTissue(t *testing.T) {
	m := models.NewMask(6, 6)
	for i := range m.Pix {
		m.Pix[i] = true
	}
	if e := Erode(m, 2); e.Count() != 36 {
		t.Errorf("Expected full mask to survive erosion, got %d", e.Count())
	}
}

func TestExtractSlide(t *testing.T) {
	img := createSlideImage(100, 100, image.Rect(30, 20, 70, 60))

	r, err := testExtractor(models.Fixed).Extract("s1", img)
	if err != nil {
		t.Fatalf("Extraction failed: %v", err)
	}
	if r.Mask.Count() != 1600 {
		t.Errorf("Expected the 40x40 tissue block, got %d pixels", r.Mask.Count())
	}
	if !r.Mask.At(30, 20) || r.Mask.At(29, 20) || r.Mask.At(70, 59) {
		t.Error("Mask does not follow the tissue edges")
	}
	if r.Polarity != config.PolarityBright {
		t.Errorf("Expected bright polarity, got %s", r.Polarity)
	}
}

func TestExtractComposite(t *testing.T) {
	img := createCompositeImage(120, 120, image.Rect(40, 30, 90, 80), 3)

	m, err := testExtractor(models.Moving).ExtractMask(img)
	if err != nil {
		t.Fatalf("Extraction failed: %v", err)
	}
	cx, cy, ok := m.Centroid()
	if !ok {
		t.Fatal("Expected non-empty mask")
	}
	if math.Abs(cx-64) > 3 || math.Abs(cy-54) > 3 {
		t.Errorf("Expected centroid near block centre, got (%.1f, %.1f)", cx, cy)
	}
	// dots are joined into a solid block
	if !m.At(65, 55) || !m.At(41, 31) {
		t.Error("Expected dots to be merged into a solid mask")
	}
	if m.At(5, 5) {
		t.Error("Background should stay empty")
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	img := createSlideImage(200, 150, image.Rect(20, 30, 150, 120))
	e := testExtractor(models.Fixed)
	e.WorkingSize = 64

	a, err := e.ExtractMask(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.ExtractMask(img)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("Expected identical masks from repeated extraction")
	}
}

func TestExtractDegenerate(t *testing.T) {
	blank := createSlideImage(50, 50, image.Rectangle{})
	_, err := testExtractor(models.Fixed).Extract("blank", blank)

	var mErr *models.MaskExtractionError
	if !errors.As(err, &mErr) {
		t.Fatalf("Expected MaskExtractionError, got %v", err)
	}
	if mErr.ID != "blank" || mErr.Side != models.Fixed || mErr.Coverage != 0 {
		t.Errorf("Unexpected error fields: %+v", mErr)
	}

	full := createSlideImage(50, 50, image.Rect(0, 0, 50, 50))
	full.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	e := testExtractor(models.Fixed)
	_, err = e.Extract("full", full)
	if !errors.As(err, &mErr) {
		t.Fatalf("Expected MaskExtractionError for full coverage, got %v", err)
	}
	if mErr.Coverage < 0.99 {
		t.Errorf("Expected coverage near 1, got %g", mErr.Coverage)
	}
}
