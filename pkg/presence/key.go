package presence

import (
	"sort"

	"github.com/teslashibe/go-narrator/pkg/detection"
)

// Direction is a coarse horizontal position bucket.
type Direction string

// Direction buckets split the frame into three equal thirds.
const (
	Left   Direction = "left"
	Center Direction = "center"
	Right  Direction = "right"
)

// DirectionOf buckets a horizontal center cx within a frame of the given
// width: left for cx < w/3, center for w/3 <= cx < 2w/3, right otherwise.
// Out-of-frame values clamp to the nearest edge bucket.
func DirectionOf(cx float64, width int) Direction {
	w := float64(width)
	switch {
	case cx*3 < w:
		return Left
	case cx*3 < 2*w:
		return Center
	default:
		return Right
	}
}

// Key identifies a reported object: its label plus its direction bucket.
// Several objects with the same label in the same bucket share one key.
type Key struct {
	Label     string    `json:"label"`
	Direction Direction `json:"direction"`
}

// KeyOf computes the identity key of a detection in a frame of the given
// width.
func KeyOf(d detection.Detection, width int) Key {
	return Key{Label: d.Label, Direction: DirectionOf(d.CenterX(), width)}
}

// String returns the spoken form, e.g. "person on the center".
func (k Key) String() string {
	return k.Label + " on the " + string(k.Direction)
}

// SortKeys sorts keys lexicographically by their string form.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}

// Observation is a detection annotated with its identity key, for renderers.
type Observation struct {
	detection.Detection
	Key Key `json:"key"`
}

// Annotate computes the key of every detection. Order is preserved.
func Annotate(dets []detection.Detection, width int) []Observation {
	out := make([]Observation, len(dets))
	for i, d := range dets {
		out[i] = Observation{Detection: d, Key: KeyOf(d, width)}
	}
	return out
}
