package imageio

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"slidealign/internal/models"
)

// Directory layout under the data root
const (
	SlidesDir    = "slides"
	CompositeDir = "cosmx"
	TilesDir     = "cosmx_tiles"
)

// Discovery is the result of matching composites to slides
type Discovery struct {
	// Pairs have both sides present, sorted by ID
	Pairs []models.Pair

	// Missing lists identifiers with only one side present
	Missing []*models.InputMissingError
}

// Discover matches every composite under <dataDir>/cosmx to a slide under
// <dataDir>/slides by case-insensitive filename stem. An unreadable data root
// or a missing composite directory is a fatal error.
func Discover(dataDir string) (*Discovery, error) {
	if _, err := os.ReadDir(dataDir); err != nil {
		return nil, errors.Wrapf(err, "cannot read data directory %s", dataDir)
	}

	moving, err := listStems(filepath.Join(dataDir, CompositeDir), MovingExtensions)
	if err != nil {
		return nil, errors.Wrap(err, "composite directory")
	}

	// A missing slides dir just means every composite lacks its slide
	fixed, err := listStems(filepath.Join(dataDir, SlidesDir), FixedExtensions)
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "slides directory")
	}

	result := &Discovery{}
	for key, m := range moving {
		f, ok := fixed[key]
		if !ok {
			result.Missing = append(result.Missing, &models.InputMissingError{ID: m.stem, Side: models.Fixed})
			continue
		}
		result.Pairs = append(result.Pairs, models.Pair{ID: m.stem, FixedPath: f.path, MovingPath: m.path})
	}
	for key, f := range fixed {
		if _, ok := moving[key]; !ok {
			result.Missing = append(result.Missing, &models.InputMissingError{ID: f.stem, Side: models.Moving})
		}
	}

	sort.Slice(result.Pairs, func(i, j int) bool { return result.Pairs[i].ID < result.Pairs[j].ID })
	sort.Slice(result.Missing, func(i, j int) bool {
		if result.Missing[i].ID != result.Missing[j].ID {
			return result.Missing[i].ID < result.Missing[j].ID
		}
		return result.Missing[i].Side < result.Missing[j].Side
	})
	return result, nil
}

// FindPair resolves a single identifier. The returned error is an
// InputMissingError when either side is absent.
func FindPair(dataDir, id string) (models.Pair, error) {
	d, err := Discover(dataDir)
	if err != nil {
		return models.Pair{}, err
	}
	for _, p := range d.Pairs {
		if strings.EqualFold(p.ID, id) {
			return p, nil
		}
	}
	for _, m := range d.Missing {
		if strings.EqualFold(m.ID, id) {
			return models.Pair{}, m
		}
	}
	return models.Pair{}, &models.InputMissingError{ID: id, Side: models.Moving}
}

// TileDir is where artifacts for an identifier live
func TileDir(dataDir, id string) string {
	return filepath.Join(dataDir, TilesDir, id)
}

type stemFile struct {
	stem string
	path string
	rank int
}

// listStems maps lower-cased stems to files. When several files share a stem
// the one whose extension comes first in exts wins; equal extensions keep
// the first name in directory order.
func listStems(dir string, exts []string) (map[string]stemFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := map[string]stemFile{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rank := extensionRank(e.Name(), exts)
		if rank < 0 {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		key := strings.ToLower(stem)
		if prev, dup := out[key]; dup && prev.rank <= rank {
			continue
		}
		out[key] = stemFile{stem: stem, path: filepath.Join(dir, e.Name()), rank: rank}
	}
	return out, nil
}
