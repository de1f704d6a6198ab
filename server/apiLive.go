package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const (
	liveJPEGQuality = 85
	mjpegBoundary   = "frame"
	mjpegInterval   = 33 * time.Millisecond
)

// Latest annotated frame as a JPEG
func (s *Server) httpSnapshot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	frame := s.State.CurrentFrame()
	if frame == nil {
		www.PanicNotFound()
	}
	jpg, err := frame.JPEG(liveJPEGQuality)
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	www.CacheNever(w)
	w.Write(jpg)
}

// MJPEG stream of the annotated live view. Runs until the client disconnects.
func (s *Server) httpVideoFeed(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		www.PanicServerError("Streaming is not supported")
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	www.CacheNever(w)

	var last *camera.Frame
	nSent := 0
	ticker := time.NewTicker(mjpegInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.Log.Debugf("MJPEG client disconnected after %v frames", nSent)
			return
		case <-ticker.C:
		}
		frame := s.State.CurrentFrame()
		if frame == nil || frame == last {
			continue
		}
		last = frame
		jpg, err := frame.JPEG(liveJPEGQuality)
		if err != nil {
			s.Log.Warnf("Failed to encode live frame: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "--%v\r\nContent-Type: image/jpeg\r\nContent-Length: %v\r\n\r\n", mjpegBoundary, len(jpg)); err != nil {
			return
		}
		if _, err := w.Write(jpg); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
		nSent++
	}
}

// Websocket stream of status and violation events
func (s *Server) httpEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("Event websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()
	s.hub.Run(c)
}
