// Package detect abstracts face and eye region detection. The engine and
// matcher depend only on the Detector interface; the default implementation
// runs pigo cascades and lives in pigo.go.
package detect

import "image"

// Detector locates face regions in a frame and eye regions within a face.
// Implementations must be safe for use from the single engine loop; they
// are not required to be safe for concurrent use.
type Detector interface {
	// Faces returns the bounding boxes of all detected faces in the frame.
	Faces(frame image.Image) []image.Rectangle

	// Eyes returns the bounding boxes of eye regions detected for the given
	// face box. Boxes may extend past the face; the focus classifier only
	// counts those fully inside it.
	Eyes(frame image.Image, face image.Rectangle) []image.Rectangle
}
