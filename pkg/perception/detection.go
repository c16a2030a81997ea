// Package perception turns the camera pipeline's object detections into the
// per-cycle observations navigation consumes: where the followed person is,
// how large they appear, and whether a big obstacle blocks the way.
package perception

import "github.com/samber/lo"

// Detection is one labelled bounding box, normalized to the frame (0-1).
// X, Y is the top-left corner.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

// Center is the box center in frame coordinates.
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area is the box area as a fraction of the frame.
func (d Detection) Area() float64 {
	return d.W * d.H
}

// SelectBest returns the most convincing detection, weighing confidence at
// 70% and size relative to the largest box at 30%. Ties keep the earlier
// detection; nil when dets is empty.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	maxArea := lo.Max(lo.Map(dets, func(d Detection, _ int) float64 { return d.Area() }))
	score := func(d Detection) float64 {
		s := d.Confidence * 0.7
		if maxArea > 0 {
			s += d.Area() / maxArea * 0.3
		}
		return s
	}

	best := 0
	for i := 1; i < len(dets); i++ {
		if score(dets[i]) > score(dets[best]) {
			best = i
		}
	}
	return &dets[best]
}
