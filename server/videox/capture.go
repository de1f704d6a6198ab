package videox

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/server/camera"
	"gocv.io/x/gocv"
)

// CaptureConfig describes the device that we're reading from
type CaptureConfig struct {
	Device string  // Device index (eg "0"), file name, or stream URL (eg rtsp://...)
	Width  int     // Requested width. Zero to leave as-is.
	Height int     // Requested height. Zero to leave as-is.
	FPS    float64 // Requested frame rate. Zero to leave as-is.
}

// Capture reads frames from an OpenCV VideoCapture on its own goroutine.
// Only the most recent frame is retained.
type Capture struct {
	Log    logs.Log
	config CaptureConfig

	capture       *gocv.VideoCapture
	slot          camera.FrameSlot
	mustStop      atomic.Bool // True if Stop() has been called
	looperStopped chan bool   // Closed when the reader loop exits
	stopOnce      sync.Once
	nextIndex     int64

	fpsLock      sync.Mutex
	reportedFPS  float64
	fpsEstimator *camera.FPSEstimator
}

func NewCapture(logger logs.Log, config CaptureConfig) *Capture {
	return &Capture{
		Log:          logs.NewPrefixLogger(logger, "Capture"),
		config:       config,
		fpsEstimator: camera.NewFPSEstimator(30),
	}
}

// Open the device and start reading frames
func (c *Capture) Start() error {
	var err error
	if idx, errParse := strconv.Atoi(c.config.Device); errParse == nil {
		c.capture, err = gocv.OpenVideoCapture(idx)
	} else {
		c.capture, err = gocv.OpenVideoCapture(c.config.Device)
	}
	if err != nil {
		return fmt.Errorf("Failed to open video source %v: %w", c.config.Device, err)
	}
	if !c.capture.IsOpened() {
		c.capture.Close()
		return fmt.Errorf("Video source %v is not open", c.config.Device)
	}
	if c.config.Width != 0 {
		c.capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	}
	if c.config.Height != 0 {
		c.capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	}
	if c.config.FPS != 0 {
		c.capture.Set(gocv.VideoCaptureFPS, c.config.FPS)
	}
	// Keep the driver's internal queue short, so that we don't fall behind real time
	c.capture.Set(gocv.VideoCaptureBufferSize, 2)

	c.reportedFPS = c.capture.Get(gocv.VideoCaptureFPS)
	width := int(c.capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(c.capture.Get(gocv.VideoCaptureFrameHeight))
	c.Log.Infof("Camera initialized: %vx%v @ %.1f FPS", width, height, c.reportedFPS)

	c.mustStop.Store(false)
	c.looperStopped = make(chan bool)
	go c.loop()
	return nil
}

// Read returns the latest unread frame, or nil
func (c *Capture) Read() *camera.Frame {
	return c.slot.Take()
}

// Stop the reader loop, and release the device
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		if c.looperStopped == nil {
			return
		}
		c.mustStop.Store(true)
		<-c.looperStopped
		if err := c.capture.Close(); err != nil {
			c.Log.Warnf("Error closing video source: %v", err)
		}
		published, dropped := c.slot.Stats()
		c.Log.Infof("Stopped. %v frames read, %v dropped", published, dropped)
	})
}

// FPS returns the frame rate reported by the device, or our own measurement
// if the device doesn't report one.
func (c *Capture) FPS() float64 {
	if c.reportedFPS > 0 {
		return c.reportedFPS
	}
	c.fpsLock.Lock()
	defer c.fpsLock.Unlock()
	return c.fpsEstimator.FPS()
}

func (c *Capture) loop() {
	mat := gocv.NewMat()
	defer mat.Close()
	lastErrAt := time.Time{}

	for !c.mustStop.Load() {
		if ok := c.capture.Read(&mat); !ok || mat.Empty() {
			if time.Since(lastErrAt) > 15*time.Second {
				c.Log.Warnf("Failed to read frame from %v", c.config.Device)
				lastErrAt = time.Now()
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		now := time.Now()
		img, err := MatToImage(mat)
		if err != nil {
			if time.Since(lastErrAt) > 15*time.Second {
				c.Log.Errorf("Failed to convert frame: %v", err)
				lastErrAt = now
			}
			continue
		}
		if c.reportedFPS <= 0 {
			c.fpsLock.Lock()
			c.fpsEstimator.AddFrame(now)
			c.fpsLock.Unlock()
		}
		c.nextIndex++
		c.slot.Publish(camera.NewFrame(c.nextIndex, now, img))
	}
	close(c.looperStopped)
}
