package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned by Poll while the detection stream is down
	// and no usable frame is cached.
	ErrNotConnected = errors.New("perception: not connected")

	// ErrBadMessage is returned for detection messages that can't be decoded.
	ErrBadMessage = errors.New("perception: bad message")
)

// Source is the control loop's view of the camera pipeline. Poll must
// return promptly; an empty Frame means nobody and nothing in view.
type Source interface {
	Poll(ctx context.Context) (Frame, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Frame, error)

// Poll calls f.
func (f SourceFunc) Poll(ctx context.Context) (Frame, error) {
	return f(ctx)
}

// Message is the detection stream's wire format:
//
//	{"timestamp": 1767268800.25, "width": 640, "height": 480,
//	 "detections": [{"label": "person", "confidence": 0.91, "box": [212, 40, 120, 300]}]}
//
// Boxes are x, y, w, h in pixels when width and height are set, normalized otherwise.
type Message struct {
	Timestamp  float64      `json:"timestamp"` // Unix seconds
	Width      float64      `json:"width"`
	Height     float64      `json:"height"`
	Detections []WireObject `json:"detections"`
}

// WireObject is one detection on the wire.
type WireObject struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// DecodeMessage parses a detection message into normalized detections and
// the capture time.
func DecodeMessage(data []byte) ([]Detection, time.Time, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	sx, sy := 1.0, 1.0
	if msg.Width > 0 && msg.Height > 0 {
		sx, sy = 1/msg.Width, 1/msg.Height
	}

	dets := make([]Detection, 0, len(msg.Detections))
	for _, o := range msg.Detections {
		dets = append(dets, Detection{
			Label:      o.Label,
			Confidence: o.Confidence,
			X:          o.Box[0] * sx,
			Y:          o.Box[1] * sy,
			W:          o.Box[2] * sx,
			H:          o.Box[3] * sy,
		})
	}

	var captured time.Time
	if msg.Timestamp > 0 {
		sec := int64(msg.Timestamp)
		nsec := int64((msg.Timestamp - float64(sec)) * 1e9)
		captured = time.Unix(sec, nsec)
	}
	return dets, captured, nil
}
