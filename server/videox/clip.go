package videox

import (
	"fmt"
	"time"

	"github.com/cyclopcam/threatwatch/server/camera"
	"gocv.io/x/gocv"
)

// Clip is a video file that has been opened for random access reads
type Clip struct {
	Path       string
	capture    *gocv.VideoCapture
	frameCount int
	fps        float64
}

// Open a clip that was written by ClipWriter
func OpenClip(path string) (*Clip, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open clip %v: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("Clip %v could not be opened", path)
	}
	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = camera.DefaultFPS
	}
	return &Clip{
		Path:       path,
		capture:    capture,
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		fps:        fps,
	}, nil
}

func (c *Clip) FrameCount() int {
	return c.frameCount
}

func (c *Clip) FPS() float64 {
	return c.fps
}

// ReadFrame seeks to the given frame index and decodes it.
// The returned frame's CapturedAt is relative to the zero time, at idx / fps.
func (c *Clip) ReadFrame(idx int) (*camera.Frame, error) {
	if idx < 0 || idx >= c.frameCount {
		return nil, fmt.Errorf("Frame %v out of range [0, %v)", idx, c.frameCount)
	}
	c.capture.Set(gocv.VideoCapturePosFrames, float64(idx))
	mat := gocv.NewMat()
	defer mat.Close()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("Failed to read frame %v of %v", idx, c.Path)
	}
	img, err := MatToImage(mat)
	if err != nil {
		return nil, err
	}
	pts := time.Time{}.Add(time.Duration(float64(idx) / c.fps * float64(time.Second)))
	return camera.NewFrame(int64(idx), pts, img), nil
}

func (c *Clip) Close() error {
	return c.capture.Close()
}
