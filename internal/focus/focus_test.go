package focus

import (
	"image"
	"testing"
)

type stubDetector struct {
	eyes []image.Rectangle
}

func (d *stubDetector) Faces(image.Image) []image.Rectangle {
	return nil
}

func (d *stubDetector) Eyes(image.Image, image.Rectangle) []image.Rectangle {
	return d.eyes
}

func TestFocused(t *testing.T) {
	face := image.Rect(100, 100, 200, 200)
	frame := image.NewRGBA(image.Rect(0, 0, 300, 300))

	tests := []struct {
		name string
		eyes []image.Rectangle
		want bool
	}{
		{
			name: "two eyes in bounds",
			eyes: []image.Rectangle{
				image.Rect(120, 130, 135, 145),
				image.Rect(160, 130, 175, 145),
			},
			want: true,
		},
		{
			name: "one eye",
			eyes: []image.Rectangle{image.Rect(120, 130, 135, 145)},
			want: false,
		},
		{
			name: "no eyes",
			eyes: nil,
			want: false,
		},
		{
			name: "second eye outside face does not count",
			eyes: []image.Rectangle{
				image.Rect(120, 130, 135, 145),
				image.Rect(220, 130, 235, 145),
			},
			want: false,
		},
		{
			name: "eye straddling the face edge does not count",
			eyes: []image.Rectangle{
				image.Rect(120, 130, 135, 145),
				image.Rect(190, 130, 210, 145),
			},
			want: false,
		},
		{
			name: "three eyes still focused",
			eyes: []image.Rectangle{
				image.Rect(110, 130, 125, 145),
				image.Rect(140, 130, 155, 145),
				image.Rect(170, 130, 185, 145),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubDetector{eyes: tt.eyes})
			if got := c.Focused(frame, face); got != tt.want {
				t.Errorf("Focused() = %v, want %v", got, tt.want)
			}
		})
	}
}
