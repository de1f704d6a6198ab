package notifications

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/requests"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/defs"
)

const SnapshotJPEGQuality = 85

// Result of a single dispatch attempt
type Result int

const (
	ResultSent     Result = iota // Accepted by the alert service
	ResultCooldown               // Skipped, because we sent an alert too recently
	ResultFailed                 // Network error, or the alert service rejected it
)

// Dispatcher is responsible for sending incidents to the downstream alert service.
// It has its own cooldown, independent of the incident trigger cooldown, so that
// local incident counting continues while outbound alerts are throttled.
type Dispatcher struct {
	ShutdownComplete chan bool // Closed by Close(), once all in-flight alerts are done

	log         logs.Log
	url         string
	cooldown    time.Duration
	httpTimeout time.Duration
	client      *http.Client
	now         func() time.Time

	sendLock   sync.Mutex // One alert at a time, so that the cooldown check sees the outcome of the previous send
	lastSentAt time.Time  // Only advanced when the alert service accepts an alert. Guarded by sendLock.
	wg         sync.WaitGroup
}

func NewDispatcher(logger logs.Log, url string, cooldown, httpTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		ShutdownComplete: make(chan bool),
		log:              logs.NewPrefixLogger(logger, "Alerts"),
		url:              url,
		cooldown:         cooldown,
		httpTimeout:      httpTimeout,
		client:           &http.Client{},
		now:              time.Now,
	}
}

// Dispatch sends the alert on a background goroutine, and returns immediately
func (d *Dispatcher) Dispatch(record defs.IncidentRecord, keyframe *camera.Frame, clipPath string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Send(record, keyframe, clipPath)
	}()
}

// Send the alert synchronously, unless we're still in cooldown.
// If another alert is being sent, we wait for it to finish first. If that one fails,
// this one goes out, and if it succeeds, this one is subject to the cooldown.
func (d *Dispatcher) Send(record defs.IncidentRecord, keyframe *camera.Frame, clipPath string) Result {
	if d.url == "" {
		return ResultFailed
	}

	d.sendLock.Lock()
	defer d.sendLock.Unlock()

	now := d.now()
	if !d.lastSentAt.IsZero() && now.Sub(d.lastSentAt) < d.cooldown {
		d.log.Infof("Alert cooldown active. Skipping incident %v", record.ID)
		return ResultCooldown
	}

	err := d.post(record, keyframe, clipPath)
	if err == nil {
		d.lastSentAt = now
	}

	if err != nil {
		d.log.Errorf("Failed to send alert for incident %v: %v", record.ID, err)
		return ResultFailed
	}
	d.log.Infof("Alert for incident %v sent", record.ID)
	return ResultSent
}

func (d *Dispatcher) post(record defs.IncidentRecord, keyframe *camera.Frame, clipPath string) error {
	body, contentType, err := buildAlertBody(record, keyframe, clipPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", d.url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return requests.StatusError(resp)
	}
	return nil
}

// Build the multipart form that the alert service expects
// SYNC-ALERT-FORM
func buildAlertBody(record defs.IncidentRecord, keyframe *camera.Frame, clipPath string) (io.Reader, string, error) {
	if keyframe == nil {
		return nil, "", fmt.Errorf("No snapshot frame")
	}
	jpg, err := keyframe.JPEG(SnapshotJPEGQuality)
	if err != nil {
		return nil, "", fmt.Errorf("Failed to encode snapshot: %w", err)
	}
	clip, err := os.Open(clipPath)
	if err != nil {
		return nil, "", fmt.Errorf("Clip file not found: %w", err)
	}
	defer clip.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	w.WriteField("violation_type", record.Type)
	w.WriteField("camera_id", record.CameraID)
	w.WriteField("summary", record.Summary)

	if err := writeFilePart(w, "snapshot", "snapshot.jpg", "image/jpeg", bytes.NewReader(jpg)); err != nil {
		return nil, "", err
	}
	if err := writeFilePart(w, "clip", filepath.Base(clipPath), "video/mp4", clip); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, filename, contentType string, src io.Reader) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%v"; filename="%v"`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

// Close waits for in-flight alerts to finish
func (d *Dispatcher) Close() {
	d.wg.Wait()
	close(d.ShutdownComplete)
}
