package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/pkg/requests"
)

// JPEG quality of the images that we send to the sidecar
const uploadQuality = 90

// Client is an nn.ObjectDetector that runs inference on a YOLO sidecar over HTTP
type Client struct {
	Log     logs.Log
	BaseURL string
	client  *http.Client
}

// SYNC-DETECTOR-JSON
type detectionJSON struct {
	ClassID    int       `json:"class_id"`
	Class      string    `json:"class"`
	Confidence float32   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // x1, y1, x2, y2
}

type detectResponseJSON struct {
	Detections []detectionJSON `json:"detections"`
}

type healthJSON struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

func NewClient(log logs.Log, baseURL string) *Client {
	return &Client{
		Log:     logs.NewPrefixLogger(log, "Detector"),
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Health returns an error if the sidecar is not ready
func (c *Client) Health(ctx context.Context) error {
	h, err := requests.RequestJSON[healthJSON](ctx, c.client, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("Detector at %v is not available: %w", c.BaseURL, err)
	}
	c.Log.Infof("Detector is healthy (model '%v')", h.Model)
	return nil
}

func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func (c *Client) DetectObjects(ctx context.Context, img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if params == nil {
		params = nn.NewDetectionParams()
	}
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, uploadQuality, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to encode image: %w", err)
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	part.Write(jpg)
	w.WriteField("conf_threshold", strconv.FormatFloat(float64(params.ProbabilityThreshold), 'f', -1, 32))
	w.WriteField("iou_threshold", strconv.FormatFloat(float64(params.NmsIouThreshold), 'f', -1, 32))
	if len(params.Classes) != 0 {
		classes := make([]string, len(params.Classes))
		for i, cls := range params.Classes {
			classes[i] = strconv.Itoa(cls)
		}
		w.WriteField("classes", strings.Join(classes, ","))
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/detect", buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, requests.StatusError(resp)
	}
	decoded := detectResponseJSON{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("Invalid detector response: %w", err)
	}

	objects := make([]nn.ObjectDetection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("Invalid bbox with %v elements", len(d.BBox))
		}
		objects = append(objects, nn.ObjectDetection{
			Class:      d.ClassID,
			Confidence: d.Confidence,
			Box:        nn.RectFromXYXY(d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]),
			Exact:      nn.BoxFFromXYXY(d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]),
		})
	}
	// The sidecar might not honor our class list, so filter again
	return params.Filter(objects), nil
}
