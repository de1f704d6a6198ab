package videox

import (
	"fmt"
	"image"
	"image/color"

	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/camera"
	"gocv.io/x/gocv"
)

var (
	colorSubject    = color.RGBA{0, 255, 0, 255}
	colorRestricted = color.RGBA{255, 0, 0, 255}
	colorOther      = color.RGBA{255, 255, 0, 255}
	colorHeadline   = color.RGBA{0, 255, 0, 255}
	colorStatus     = color.RGBA{0, 255, 255, 255}
)

// Annotator draws detection boxes and status text onto a copy of a frame
type Annotator struct {
	Classes nn.ClassMap
}

func NewAnnotator(classes nn.ClassMap) *Annotator {
	return &Annotator{Classes: classes}
}

// Annotate returns a new frame. The input frame is not modified.
// lines[0] is drawn as the headline, and any further lines beneath it.
func (a *Annotator) Annotate(frame *camera.Frame, objects []nn.ObjectDetection, lines []string) (*camera.Frame, error) {
	mat, err := ImageToMat(frame.Image)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	// Our colors are RGB, but the Mat is BGR
	bgr := func(c color.RGBA) color.RGBA {
		return color.RGBA{c.B, c.G, c.R, c.A}
	}

	for _, obj := range objects {
		c := colorOther
		switch obj.Class {
		case a.Classes.Subject:
			c = colorSubject
		case a.Classes.Restricted:
			c = colorRestricted
		}
		b := obj.Box
		rect := image.Rect(b.X, b.Y, b.X2(), b.Y2())
		if err := gocv.Rectangle(&mat, rect, bgr(c), 2); err != nil {
			return nil, err
		}
		label := fmt.Sprintf("%v %.2f", a.Classes.Name(obj.Class), obj.Confidence)
		pt := image.Pt(b.X, max(b.Y-10, 10))
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, bgr(c), 2); err != nil {
			return nil, err
		}
	}

	for i, line := range lines {
		scale := 0.6
		c := colorStatus
		if i == 0 {
			scale = 0.7
			c = colorHeadline
		}
		if err := gocv.PutText(&mat, line, image.Pt(10, 30+i*30), gocv.FontHersheySimplex, scale, bgr(c), 2); err != nil {
			return nil, err
		}
	}

	img, err := MatToImage(mat)
	if err != nil {
		return nil, err
	}
	return camera.NewFrame(frame.Index, frame.CapturedAt, img), nil
}
