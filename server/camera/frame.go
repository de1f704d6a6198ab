package camera

import (
	"time"

	"github.com/bmharper/cimg/v2"
)

// Frame is a single decoded image from a camera.
// Once a Frame has been published by a Source, it must not be modified.
// Anybody who wants to draw on it must Clone() it first.
type Frame struct {
	Index      int64       // Sequence number assigned by the Source, starting at 1
	CapturedAt time.Time   // Wall clock time when the frame was read from the camera
	Image      *cimg.Image // 24-bit RGB
}

func NewFrame(index int64, capturedAt time.Time, img *cimg.Image) *Frame {
	return &Frame{
		Index:      index,
		CapturedAt: capturedAt,
		Image:      img,
	}
}

func (f *Frame) Width() int {
	return f.Image.Width
}

func (f *Frame) Height() int {
	return f.Image.Height
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	src := f.Image
	dst := cimg.NewImage(src.Width, src.Height, cimg.PixelFormatRGB)
	rowBytes := src.Width * 3
	for y := 0; y < src.Height; y++ {
		copy(dst.Pixels[y*dst.Stride:y*dst.Stride+rowBytes], src.Pixels[y*src.Stride:y*src.Stride+rowBytes])
	}
	return &Frame{
		Index:      f.Index,
		CapturedAt: f.CapturedAt,
		Image:      dst,
	}
}

// Encode the frame as a JPEG
func (f *Frame) JPEG(quality int) ([]byte, error) {
	return cimg.Compress(f.Image, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}
