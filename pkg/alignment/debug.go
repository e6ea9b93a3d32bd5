package alignment

import (
	"fmt"
	"image"
	"path/filepath"

	"slidealign/pkg/imageio"
	"slidealign/pkg/orientation"
	"slidealign/pkg/refine"
	"slidealign/pkg/visualization"
)

// saveDebug renders masks, the final overlay and a composite of the working
// images into <tile dir>/debug
func (a *Aligner) saveDebug(id string, est *Estimation) error {
	dir := filepath.Join(imageio.TileDir(a.params.DataDir, id), "debug")
	viewer := visualization.NewViewer(dir)
	t := est.Transform

	overlay, err := viewer.Overlay(est.Canvas.Fixed, refine.Warp(est.Canvas.Moving, est.Final))
	if err != nil {
		return err
	}
	label := []string{
		fmt.Sprintf("%s  %v", id, t.Orientation),
		fmt.Sprintf("t=(%.1f, %.1f) s=%.3f", t.TranslationX, t.TranslationY, t.Scale),
		fmt.Sprintf("iou=%.3f sharpness=%.1f rank=%d", t.Confidence, t.Detection.Sharpness, t.Detection.AcceptedRank),
	}

	orientedImg := orientation.ApplyImage(est.Moving.Working.Image, t.Orientation)
	composite := viewer.Composite(est.Fixed.Working.Image, orientedImg, t.Scale, t.TranslationX, t.TranslationY)

	err = viewer.SaveAll(map[string]image.Image{
		"fixed_mask":  viewer.MaskImage(est.Fixed.Mask),
		"moving_mask": viewer.MaskImage(est.Oriented),
		"overlay":     viewer.Annotate(overlay, label...),
		"composite":   viewer.Annotate(composite, label...),
	})
	if err != nil {
		return err
	}
	a.log.Debugf("%s: debug images saved to %s", id, viewer.OutputDir())
	return nil
}
