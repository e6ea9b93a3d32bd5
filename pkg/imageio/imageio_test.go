package imageio

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"slidealign/internal/models"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, 30, 20)

	l, err := Load("a", models.Moving, path)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if l.Width() != 30 || l.Height() != 20 {
		t.Errorf("Expected 30x20, got %dx%d", l.Width(), l.Height())
	}
	if l.Format != "png" {
		t.Errorf("Expected png format, got %s", l.Format)
	}
}

func TestLoadMissingIsInputMissing(t *testing.T) {
	_, err := Load("gone", models.Fixed, filepath.Join(t.TempDir(), "gone.tif"))
	var missing *models.InputMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected InputMissingError, got %v", err)
	}
	if missing.Side != models.Fixed || missing.ID != "gone" {
		t.Errorf("Unexpected error fields: %+v", missing)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load("bad", models.Moving, path)
	if err == nil {
		t.Fatal("Expected decode error")
	}
	var missing *models.InputMissingError
	if errors.As(err, &missing) {
		t.Error("Decode failure should not be reported as missing input")
	}
}

func TestDiscoverPairs(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "slides", "S1.png"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "s2.png"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "only_slide.png"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "s1.png"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "s2.png"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "orphan.png"), 4, 4)
	if err := os.WriteFile(filepath.Join(root, "cosmx", "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(d.Pairs) != 2 {
		t.Fatalf("Expected 2 pairs, got %d: %+v", len(d.Pairs), d.Pairs)
	}
	if d.Pairs[0].ID != "s1" || filepath.Base(d.Pairs[0].FixedPath) != "S1.png" {
		t.Errorf("Expected case-insensitive match for s1, got %+v", d.Pairs[0])
	}

	if len(d.Missing) != 2 {
		t.Fatalf("Expected 2 missing entries, got %d", len(d.Missing))
	}
	if d.Missing[0].ID != "only_slide" || d.Missing[0].Side != models.Moving {
		t.Errorf("Unexpected missing entry: %+v", d.Missing[0])
	}
	if d.Missing[1].ID != "orphan" || d.Missing[1].Side != models.Fixed {
		t.Errorf("Unexpected missing entry: %+v", d.Missing[1])
	}
}

func TestDiscoverFatalWithoutCompositeDir(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "slides", "s1.png"), 4, 4)

	if _, err := Discover(root); err == nil {
		t.Fatal("Expected error when cosmx directory is missing")
	}
	if _, err := Discover(filepath.Join(root, "nope")); err == nil {
		t.Fatal("Expected error for missing data root")
	}
}

func TestFindPair(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "slides", "abc.tif.png"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "abc.png"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "abc.png"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "lonely.png"), 4, 4)

	p, err := FindPair(root, "ABC")
	if err != nil {
		t.Fatalf("FindPair failed: %v", err)
	}
	if filepath.Base(p.FixedPath) != "abc.png" {
		t.Errorf("Expected abc.png, got %s", p.FixedPath)
	}

	_, err = FindPair(root, "lonely")
	var missing *models.InputMissingError
	if !errors.As(err, &missing) || missing.Side != models.Fixed {
		t.Errorf("Expected missing fixed side, got %v", err)
	}
}

func TestDiscoverPrefersSlideExtension(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "slides", "abc.jpg"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "abc.png"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "abc.svs"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "def.png"), 4, 4)
	writePNG(t, filepath.Join(root, "slides", "def.tif"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "abc.png"), 4, 4)
	writePNG(t, filepath.Join(root, "cosmx", "def.png"), 4, 4)

	d, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(d.Pairs) != 2 {
		t.Fatalf("Expected 2 pairs, got %d", len(d.Pairs))
	}
	if got := filepath.Base(d.Pairs[0].FixedPath); got != "abc.svs" {
		t.Errorf("Expected abc.svs, got %s", got)
	}
	if got := filepath.Base(d.Pairs[1].FixedPath); got != "def.tif" {
		t.Errorf("Expected def.tif, got %s", got)
	}
	if len(d.Missing) != 0 {
		t.Errorf("Expected no missing entries, got %d", len(d.Missing))
	}
}
