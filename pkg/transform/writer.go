package transform

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"slidealign/internal/models"
	"slidealign/pkg/config"
	"slidealign/pkg/imageio"
	"slidealign/pkg/logger"
)

// Artifact file names inside a tile directory
const (
	ArtifactName     = "transform.json"
	AutoArtifactName = "transform.auto.json"
)

// Writer persists artifacts under <DataDir>/cosmx_tiles/<id>/
type Writer struct {
	DataDir string

	// Policy is one of the config.Overwrite* values
	Policy string

	Version string
	Now     Clock
	Logger  logger.Logger
}

// NewWriter builds a writer from configuration
func NewWriter(dataDir string, cfg *config.Config, log logger.Logger) *Writer {
	return &Writer{
		DataDir: dataDir,
		Policy:  cfg.Output.OverwritePolicy,
		Version: cfg.Output.Version,
		Now:     SystemClock,
		Logger:  log,
	}
}

// PathFor returns where an artifact for id would be written, honouring the
// overwrite policy against whatever is already on disk
func (w *Writer) PathFor(id string) string {
	dir := imageio.TileDir(w.DataDir, id)
	main := filepath.Join(dir, ArtifactName)
	auto := filepath.Join(dir, AutoArtifactName)

	data, err := os.ReadFile(main)
	if os.IsNotExist(err) {
		return main
	}

	switch w.Policy {
	case config.OverwriteAlways:
		return main
	case config.OverwriteReplaceAuto:
		if err != nil {
			w.logf("%s: existing artifact unreadable (%v), writing %s", id, err, AutoArtifactName)
			return auto
		}
		method, serr := SniffMethod(data)
		if serr == nil && method == MethodAuto {
			return main
		}
		w.logf("%s: keeping existing %q artifact, writing %s", id, method, AutoArtifactName)
		return auto
	default:
		w.logf("%s: artifact exists, writing %s", id, AutoArtifactName)
		return auto
	}
}

// Write serialises t for id and returns the file written
func (w *Writer) Write(id string, t models.AlignmentTransform) (string, error) {
	if t.Timestamp.IsZero() && w.Now != nil {
		t.Timestamp = w.Now()
	}

	path := w.PathFor(id)
	body, err := json.MarshalIndent(FromResult(id, w.Version, t), "", "  ")
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode artifact for %s", id)
	}

	if err := writeFileAtomic(path, append(body, '\n')); err != nil {
		return "", errors.Wrapf(err, "failed to write artifact for %s", id)
	}
	return path, nil
}

// Read loads the artifact at path
func Read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Decode(data)
}

func (w *Writer) logf(format string, a ...interface{}) {
	if w.Logger != nil {
		w.Logger.Infof(format, a...)
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".transform-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
