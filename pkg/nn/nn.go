package nn

import (
	"context"
	"slices"
	"time"

	"github.com/bmharper/cimg/v2"
)

// Package nn is the object detection interface layer.
// Concrete detectors live elsewhere (eg server/detector talks to an inference sidecar).

const DefaultProbabilityThreshold = 0.5
const DefaultNmsIouThreshold = 0.4

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
	Exact      BoxF    `json:"-"` // Unrounded box from the detector. Zero if the detector only gave us Box.
}

// ExactBox returns the unrounded box if the detector provided one, otherwise Box
func (o *ObjectDetection) ExactBox() BoxF {
	if o.Exact != (BoxF{}) {
		return o.Exact
	}
	return o.Box.BoxF()
}

// Results of an NN object detection run
type DetectionResult struct {
	ImageWidth  int               `json:"imageWidth"`
	ImageHeight int               `json:"imageHeight"`
	Objects     []ObjectDetection `json:"objects"`
	FrameIndex  int64             `json:"frameIndex"`
	FramePTS    time.Time         `json:"framePTS"`
}

// Clone returns a deep copy, so that a reader can hold onto the result while the
// detection loop replaces it.
func (r *DetectionResult) Clone() *DetectionResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Objects = slices.Clone(r.Objects)
	return &c
}

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
	Classes              []int   // If not empty, only these classes are returned
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
	}
}

// Filter returns only the objects that satisfy the class and probability constraints of p.
// Detectors are free to ignore DetectionParams, so callers that depend on the filter run it again.
func (p *DetectionParams) Filter(objects []ObjectDetection) []ObjectDetection {
	out := make([]ObjectDetection, 0, len(objects))
	for _, obj := range objects {
		if len(p.Classes) != 0 && !slices.Contains(p.Classes, obj.Class) {
			continue
		}
		if obj.Confidence < p.ProbabilityThreshold {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close releases any resources held by the detector
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// img is a 24-bit RGB image.
	// You can create a default DetectionParams with NewDetectionParams()
	DetectObjects(ctx context.Context, img *cimg.Image, params *DetectionParams) ([]ObjectDetection, error)
}
