// Package imageio loads slide and composite images and pairs them up by
// identifier under a data directory.
package imageio

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"slidealign/internal/models"
)

// Loaded is a decoded image together with where it came from
type Loaded struct {
	Path   string
	Format string
	Image  image.Image
}

// Width returns the native image width in pixels
func (l *Loaded) Width() int {
	return l.Image.Bounds().Dx()
}

// Height returns the native image height in pixels
func (l *Loaded) Height() int {
	return l.Image.Bounds().Dy()
}

// Load decodes the image at path. A missing file is reported as an
// InputMissingError for the given pair side.
func Load(id string, side models.Side, path string) (*Loaded, error) {
	if path == "" {
		return nil, &models.InputMissingError{ID: id, Side: side}
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.InputMissingError{ID: id, Side: side, Path: path}
		}
		return nil, errors.Wrapf(err, "failed to open %s image", side)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s image %s", side, filepath.Base(path))
	}
	if img.Bounds().Empty() {
		return nil, errors.Errorf("%s image %s has no pixels", side, filepath.Base(path))
	}

	return &Loaded{Path: path, Format: format, Image: img}, nil
}

// FixedExtensions are the whole-slide formats recognised under slides/, most
// preferred first. SVS files decode through the TIFF reader, so only
// uncompressed, LZW or Deflate SVS pyramids are readable.
var FixedExtensions = []string{".svs", ".tif", ".tiff", ".png", ".jpg", ".jpeg"}

// MovingExtensions are the composite formats recognised under cosmx/
var MovingExtensions = []string{".png"}

// extensionRank is the index of name's extension in exts, or -1
func extensionRank(name string, exts []string) int {
	ext := strings.ToLower(filepath.Ext(name))
	for i, e := range exts {
		if ext == e {
			return i
		}
	}
	return -1
}
