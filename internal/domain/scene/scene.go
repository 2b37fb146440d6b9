package scene

import (
	"context"
	"fmt"

	domainimage "shravan-server-go/internal/domain/image"
)

// Box is an axis-aligned bounding box in pixels of the analysed image.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

func (b Box) Area() float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

type Detection struct {
	Label      string  `json:"object"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"position"`
}

// Detector is the object-detection collaborator. Implementations must be safe
// for concurrent use.
type Detector interface {
	Detect(ctx context.Context, req DetectRequest) (*DetectResponse, error)
}

type DetectRequest struct {
	ImagePath string
	Frame     *domainimage.Frame
}

// DetectResponse lists detections in the order the model emitted them.
// Width and Height are optional and describe the image the boxes refer to.
type DetectResponse struct {
	Detections []Detection
	Width      int
	Height     int
}

// Status distinguishes a clean empty scene from a failure.
type Status string

const (
	StatusDetected Status = "detected"
	StatusEmpty    Status = "empty"
	StatusFailed   Status = "failed"
	StatusNoImage  Status = "no_image"
)

const (
	LabelNothing = "nothing recognizable"
	LabelFailed  = "error processing image"
	LabelNoImage = "no image provided"
)

// Descriptor is the compact positional summary of one detection.
type Descriptor struct {
	Label      string `json:"label"`
	Size       string `json:"size"`
	Horizontal string `json:"horizontal"`
	Vertical   string `json:"vertical"`
}

// String renders "label (size, horizontal-vertical)".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s-%s)", d.Label, d.Size, d.Horizontal, d.Vertical)
}

// Scene is the outcome of the detection stage.
type Scene struct {
	Status Status
	// Detections are filtered and sorted by confidence descending.
	Detections []Detection
	// Descriptors cover the top detections only.
	Descriptors []Descriptor
	// Err is the collaborator failure behind StatusFailed.
	Err error
}

// Label is the top detection's label, or the sentinel for the scene's status.
func (s Scene) Label() string {
	switch s.Status {
	case StatusDetected:
		if len(s.Detections) > 0 {
			return s.Detections[0].Label
		}
		return LabelNothing
	case StatusFailed:
		return LabelFailed
	case StatusNoImage:
		return LabelNoImage
	default:
		return LabelNothing
	}
}
