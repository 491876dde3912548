package detect

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"
	"github.com/rs/zerolog/log"
)

// Cascade file names expected inside the cascade directory. These are the
// stock pigo binary cascades.
const (
	faceCascadeFile  = "facefinder"
	pupilCascadeFile = "puploc"
)

// minFaceQuality filters low-confidence cascade detections.
const minFaceQuality = 5.0

// PigoDetector implements Detector with pigo's pixel-intensity-comparison
// cascades: facefinder for faces and puploc for pupil localization. Pure
// Go, no OpenCV toolchain required.
type PigoDetector struct {
	faces  *pigo.Pigo
	pupils *pigo.PuplocCascade

	minSize int
	maxSize int

	// grayscale plane of the last converted frame, reused between the
	// Faces and Eyes calls of one check.
	lastFrame image.Image
	lastPlane pigo.ImageParams
}

// NewPigoDetector loads the facefinder and puploc cascades from dir.
func NewPigoDetector(dir string) (*PigoDetector, error) {
	faceData, err := os.ReadFile(filepath.Join(dir, faceCascadeFile))
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	faces, err := pigo.NewPigo().Unpack(faceData)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}

	pupilData, err := os.ReadFile(filepath.Join(dir, pupilCascadeFile))
	if err != nil {
		return nil, fmt.Errorf("read pupil cascade: %w", err)
	}
	pupils, err := pigo.NewPuplocCascade().UnpackCascade(pupilData)
	if err != nil {
		return nil, fmt.Errorf("unpack pupil cascade: %w", err)
	}

	log.Debug().Str("dir", dir).Msg("Loaded pigo cascades")

	return &PigoDetector{
		faces:   faces,
		pupils:  pupils,
		minSize: 60,
		maxSize: 1000,
	}, nil
}

// plane converts the frame to the grayscale plane pigo operates on,
// reusing the conversion when the same frame is passed twice in one check.
func (d *PigoDetector) plane(frame image.Image) pigo.ImageParams {
	if frame == d.lastFrame {
		return d.lastPlane
	}

	bounds := frame.Bounds()
	cols := bounds.Dx()
	rows := bounds.Dy()

	d.lastFrame = frame
	d.lastPlane = pigo.ImageParams{
		Pixels: pigo.RgbToGrayscale(frame),
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
	return d.lastPlane
}

// Faces runs the face cascade over the whole frame.
func (d *PigoDetector) Faces(frame image.Image) []image.Rectangle {
	params := pigo.CascadeParams{
		MinSize:     d.minSize,
		MaxSize:     d.maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: d.plane(frame),
	}

	dets := d.faces.RunCascade(params, 0.0)
	dets = d.faces.ClusterDetections(dets, 0.2)

	var regions []image.Rectangle
	for _, det := range dets {
		if det.Q < minFaceQuality {
			continue
		}
		half := det.Scale / 2
		regions = append(regions, image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half))
	}
	return regions
}

// Eyes localizes the left and right pupil within the face box and returns
// a small region around each one found.
func (d *PigoDetector) Eyes(frame image.Image, face image.Rectangle) []image.Rectangle {
	plane := d.plane(frame)

	scale := face.Dx()
	row := face.Min.Y + face.Dy()/2
	col := face.Min.X + scale/2

	var eyes []image.Rectangle
	for _, offset := range []struct{ dRow, dCol float64 }{
		{-0.075, -0.175}, // left eye
		{-0.075, 0.175},  // right eye
	} {
		seed := pigo.Puploc{
			Row:      row + int(offset.dRow*float64(scale)),
			Col:      col + int(offset.dCol*float64(scale)),
			Scale:    float32(scale) * 0.25,
			Perturbs: 50,
		}
		loc := d.pupils.RunDetector(seed, plane, 0.0, false)
		if loc.Row <= 0 || loc.Col <= 0 {
			continue
		}
		r := int(loc.Scale / 2)
		if r < 1 {
			r = 1
		}
		eyes = append(eyes, image.Rect(loc.Col-r, loc.Row-r, loc.Col+r, loc.Row+r))
	}
	return eyes
}
