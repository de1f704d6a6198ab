package videox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/server/camera"
	"gocv.io/x/gocv"
)

// Codec is a container/codec pair that we can try to write a clip with
type Codec struct {
	FourCC    string // eg "MJPG"
	Extension string // eg ".avi"
}

// DefaultCodecs is the order in which we try to open an encoder.
// MJPG is first because it is available in almost every OpenCV build.
var DefaultCodecs = []Codec{
	{"MJPG", ".avi"},
	{"XVID", ".avi"},
	{"mp4v", ".mp4"},
}

var ErrNoFrames = errors.New("Frame buffer is empty")
var ErrNoEncoder = errors.New("No video encoder could be opened")

// ClipWriter writes incident clips into a directory
type ClipWriter struct {
	Log    logs.Log
	Dir    string
	Codecs []Codec

	encode func(filename string, codec Codec, frames []*camera.Frame, fps float64, width, height int) error
}

func NewClipWriter(log logs.Log, dir string) *ClipWriter {
	w := &ClipWriter{
		Log:    log,
		Dir:    dir,
		Codecs: DefaultCodecs,
	}
	w.encode = w.writeWithCodec
	return w
}

// WriteClip writes the buffer, followed by the trigger frame, to a new file named
// violation_<unix><ext>. Returns the path of the file.
// The codecs are tried in order, and the first one that opens is used.
// An empty buffer is an error, even if there is a trigger frame.
func (w *ClipWriter) WriteClip(buffer []*camera.Frame, trigger *camera.Frame, fps float64, at time.Time) (string, error) {
	if len(buffer) == 0 {
		return "", ErrNoFrames
	}
	frames := make([]*camera.Frame, 0, len(buffer)+1)
	frames = append(frames, buffer...)
	if trigger != nil {
		frames = append(frames, trigger)
	}
	if fps <= 0 {
		fps = camera.DefaultFPS
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("Failed to create clip directory %v: %w", w.Dir, err)
	}

	width := frames[0].Width()
	height := frames[0].Height()

	for _, codec := range w.Codecs {
		filename := filepath.Join(w.Dir, fmt.Sprintf("violation_%v%v", at.Unix(), codec.Extension))
		err := w.encode(filename, codec, frames, fps, width, height)
		if err != nil {
			w.Log.Warnf("Codec %v failed: %v", codec.FourCC, err)
			os.Remove(filename)
			continue
		}
		st, err := os.Stat(filename)
		if err != nil || st.Size() == 0 {
			os.Remove(filename)
			return "", fmt.Errorf("Clip %v is empty", filename)
		}
		w.Log.Infof("Saved clip %v with %v frames (%v, %.1f FPS, %v bytes)", filename, len(frames), codec.FourCC, fps, st.Size())
		return filename, nil
	}
	return "", ErrNoEncoder
}

func (w *ClipWriter) writeWithCodec(filename string, codec Codec, frames []*camera.Frame, fps float64, width, height int) error {
	writer, err := gocv.VideoWriterFile(filename, codec.FourCC, fps, width, height, true)
	if err != nil {
		return err
	}
	defer writer.Close()
	if !writer.IsOpened() {
		return fmt.Errorf("Encoder did not open")
	}
	for _, f := range frames {
		if f.Width() != width || f.Height() != height {
			// Cameras can change resolution mid-stream. The container cannot.
			continue
		}
		mat, err := ImageToMat(f.Image)
		if err != nil {
			return err
		}
		err = writer.Write(mat)
		mat.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
