// Package overlay draws detections on camera frames and presents them, in a
// desktop window or as JPEG bytes for the dashboard.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/presence"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 255}
	guideColor = color.RGBA{255, 255, 255, 255}
)

// Caption returns the label drawn above a box, e.g. "person center 87%".
func Caption(o presence.Observation) string {
	return fmt.Sprintf("%s %s %d%%", o.Label, o.Key.Direction, int(o.Confidence*100+0.5))
}

// Guides returns the x positions of the direction bucket boundaries.
func Guides(width int) (left, right int) {
	return width / 3, 2 * width / 3
}

// Draw annotates img in place: one box and caption per observation and the
// two vertical guide lines between the direction buckets.
func Draw(img *gocv.Mat, obs []presence.Observation) {
	w, h := img.Cols(), img.Rows()

	for _, o := range obs {
		rect := image.Rect(o.X1, o.Y1, o.X2, o.Y2)
		gocv.Rectangle(img, rect, boxColor, 2)

		y := o.Y1 - 10
		if y < 12 {
			y = o.Y1 + 16
		}
		gocv.PutText(img, Caption(o), image.Pt(o.X1, y), gocv.FontHersheySimplex, 0.6, boxColor, 2)
	}

	left, right := Guides(w)
	gocv.Line(img, image.Pt(left, 0), image.Pt(left, h), guideColor, 1)
	gocv.Line(img, image.Pt(right, 0), image.Pt(right, h), guideColor, 1)
}
