package videox

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"gocv.io/x/gocv"
)

// OpenCV works in BGR, and the rest of the system works in RGB.
// These functions are the only place where we cross that boundary.

// Convert a BGR Mat into a new RGB image. The Mat is not modified.
func MatToImage(mat gocv.Mat) (*cimg.Image, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("Empty frame")
	}
	if mat.Channels() != 3 {
		return nil, fmt.Errorf("Expected 3 channel frame, but got %v", mat.Channels())
	}
	rgb := gocv.NewMat()
	defer rgb.Close()
	if err := gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB); err != nil {
		return nil, err
	}
	// ToBytes copies out of OpenCV memory, so the image outlives the Mat
	return cimg.WrapImage(rgb.Cols(), rgb.Rows(), cimg.PixelFormatRGB, rgb.ToBytes()), nil
}

// Convert an RGB image into a new BGR Mat. The caller must Close() the Mat.
func ImageToMat(img *cimg.Image) (gocv.Mat, error) {
	pixels := img.Pixels
	rowBytes := img.Width * 3
	if img.Stride != rowBytes {
		pixels = make([]byte, rowBytes*img.Height)
		for y := 0; y < img.Height; y++ {
			copy(pixels[y*rowBytes:(y+1)*rowBytes], img.Pixels[y*img.Stride:y*img.Stride+rowBytes])
		}
	}
	rgb, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer rgb.Close()
	bgr := gocv.NewMat()
	if err := gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR); err != nil {
		bgr.Close()
		return gocv.NewMat(), err
	}
	return bgr, nil
}
