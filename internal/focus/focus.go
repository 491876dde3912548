// Package focus classifies whether a matched person is looking at the
// camera. The rule is strict: focused only when at least two eye regions
// are detected within the face bounds, no partial credit.
package focus

import (
	"image"

	"github.com/sahayak-ai/focus-monitor/internal/detect"
)

// minEyes is the number of in-bounds eye regions required for focused.
const minEyes = 2

// Classifier decides focused/unfocused from eye-region geometry.
type Classifier struct {
	det detect.Detector
}

// NewClassifier returns a classifier using det for eye detection.
func NewClassifier(det detect.Detector) *Classifier {
	return &Classifier{det: det}
}

// Focused reports whether the face at region is looking at the camera:
// true only when at least two eye regions fall entirely inside the face
// bounds. Runs only on matched detections; callers skip Unknown faces.
func (c *Classifier) Focused(frame image.Image, face image.Rectangle) bool {
	inBounds := 0
	for _, eye := range c.det.Eyes(frame, face) {
		if eye.In(face) {
			inBounds++
		}
	}
	return inBounds >= minEyes
}
