package videox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/stretchr/testify/require"
)

func testFrame(index int64, width, height int, r, g, b byte) *camera.Frame {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			row[x*3] = r
			row[x*3+1] = g
			row[x*3+2] = b
		}
	}
	return camera.NewFrame(index, time.Now(), img)
}

func TestConvertRoundTrip(t *testing.T) {
	f := testFrame(1, 64, 48, 200, 100, 50)
	mat, err := ImageToMat(f.Image)
	require.NoError(t, err)
	defer mat.Close()
	require.Equal(t, 64, mat.Cols())
	require.Equal(t, 48, mat.Rows())

	// BGR order inside OpenCV
	raw := mat.ToBytes()
	require.Equal(t, byte(50), raw[0])
	require.Equal(t, byte(200), raw[2])

	img, err := MatToImage(mat)
	require.NoError(t, err)
	require.Equal(t, f.Image.Pixels[:3], img.Pixels[:3])
}

func TestWriteAndReadClip(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	w := NewClipWriter(log, dir)

	buffer := []*camera.Frame{}
	for i := 0; i < 20; i++ {
		buffer = append(buffer, testFrame(int64(i+1), 160, 120, byte(i*10), 0, 0))
	}
	trigger := testFrame(21, 160, 120, 255, 255, 255)
	at := time.Unix(1700000000, 0)

	path, err := w.WriteClip(buffer, trigger, 0, at)
	require.NoError(t, err)
	require.Contains(t, path, "violation_1700000000")
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, st.Size(), int64(0))

	clip, err := OpenClip(path)
	require.NoError(t, err)
	defer clip.Close()
	require.Equal(t, 21, clip.FrameCount())
	require.Equal(t, 30.0, clip.FPS())

	f, err := clip.ReadFrame(15)
	require.NoError(t, err)
	require.Equal(t, 160, f.Width())
	require.Equal(t, 120, f.Height())
	require.Equal(t, time.Duration(500*time.Millisecond), f.CapturedAt.Sub(time.Time{}))

	_, err = clip.ReadFrame(21)
	require.Error(t, err)
}

func TestWriteClipErrors(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	w := NewClipWriter(log, dir)
	buffer := []*camera.Frame{testFrame(1, 32, 32, 0, 0, 0)}
	trigger := testFrame(2, 32, 32, 0, 0, 0)

	_, err := w.WriteClip(nil, nil, 30, time.Now())
	require.ErrorIs(t, err, ErrNoFrames)
	// A trigger frame on its own is not a clip
	_, err = w.WriteClip(nil, trigger, 30, time.Now())
	require.ErrorIs(t, err, ErrNoFrames)

	// No usable encoder
	w.Codecs = []Codec{{"ZZZZ", ".zzz"}}
	_, err = w.WriteClip(buffer, trigger, 30, time.Now())
	require.ErrorIs(t, err, ErrNoEncoder)
	entries, _ := os.ReadDir(dir)
	require.Len(t, entries, 0)
}

func TestWriteClipCodecFallback(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	w := NewClipWriter(log, dir)
	w.Codecs = []Codec{{"ZZZZ", ".zzz"}, {"MJPG", ".avi"}}
	buffer := []*camera.Frame{}
	for i := 0; i < 5; i++ {
		buffer = append(buffer, testFrame(int64(i+1), 64, 48, byte(i*40), 0, 0))
	}

	path, err := w.WriteClip(buffer, testFrame(6, 64, 48, 255, 0, 0), 10, time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "violation_1700000000.avi"), path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "violation_1700000000.avi", entries[0].Name())
}

func TestWriteClipFallbackRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	w := NewClipWriter(logs.NewTestingLog(t), dir)
	w.Codecs = []Codec{{"AAAA", ".aaa"}, {"BBBB", ".bbb"}}
	tried := []string{}
	w.encode = func(filename string, codec Codec, frames []*camera.Frame, fps float64, width, height int) error {
		tried = append(tried, codec.FourCC)
		require.Len(t, frames, 2)
		require.Equal(t, 30.0, fps)
		require.NoError(t, os.WriteFile(filename, []byte("partial"), 0644))
		if codec.FourCC == "AAAA" {
			return errors.New("encoder died halfway")
		}
		return nil
	}

	path, err := w.WriteClip([]*camera.Frame{testFrame(1, 8, 8, 0, 0, 0)}, testFrame(2, 8, 8, 0, 0, 0), 0, time.Unix(100, 0))
	require.NoError(t, err)
	require.Equal(t, []string{"AAAA", "BBBB"}, tried)
	require.Equal(t, filepath.Join(dir, "violation_100.bbb"), path)
	require.NoFileExists(t, filepath.Join(dir, "violation_100.aaa"))
}

func TestWriteClipEmptyFile(t *testing.T) {
	dir := t.TempDir()
	w := NewClipWriter(logs.NewTestingLog(t), dir)
	w.Codecs = []Codec{{"AAAA", ".aaa"}, {"BBBB", ".bbb"}}
	calls := 0
	w.encode = func(filename string, codec Codec, frames []*camera.Frame, fps float64, width, height int) error {
		calls++
		return os.WriteFile(filename, nil, 0644)
	}

	_, err := w.WriteClip([]*camera.Frame{testFrame(1, 8, 8, 0, 0, 0)}, nil, 30, time.Unix(100, 0))
	require.ErrorContains(t, err, "is empty")
	// An encoder that opened but wrote nothing ends the attempt
	require.Equal(t, 1, calls)
	entries, _ := os.ReadDir(dir)
	require.Len(t, entries, 0)
}

func TestAnnotate(t *testing.T) {
	a := NewAnnotator(nn.DefaultClassMap())
	f := testFrame(7, 200, 200, 0, 0, 0)
	objects := []nn.ObjectDetection{
		{Class: 1, Confidence: 0.9, Box: nn.RectFromXYXY(20, 20, 120, 180)},
		{Class: 2, Confidence: 0.8, Box: nn.RectFromXYXY(60, 60, 90, 90)},
	}
	out, err := a.Annotate(f, objects, []string{"Frame: 7", "Status: monitoring"})
	require.NoError(t, err)
	require.Equal(t, int64(7), out.Index)
	require.Equal(t, 200, out.Width())

	// Source is untouched
	for _, p := range f.Image.Pixels {
		require.Equal(t, byte(0), p)
	}
	// Top-left corner of the subject box is green
	px := out.Image.Pixels[20*out.Image.Stride+20*3:]
	require.Equal(t, byte(0), px[0])
	require.Equal(t, byte(255), px[1])
}
