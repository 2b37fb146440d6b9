package detector

import (
	"encoding/json"
	"fmt"

	"shravan-server-go/internal/domain/scene"
)

// wireResponse accepts the envelope shapes common inference servers emit.
type wireResponse struct {
	Detections  []wireDetection `json:"detections"`
	Predictions []wireDetection `json:"predictions"`
	Objects     []wireDetection `json:"objects"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Error       string          `json:"error"`
}

type wireDetection struct {
	Label      string          `json:"label"`
	Name       string          `json:"name"`
	Class      string          `json:"class"`
	Object     string          `json:"object"`
	Confidence *float64        `json:"confidence"`
	Score      *float64        `json:"score"`
	Box        json.RawMessage `json:"box"`
	BBox       json.RawMessage `json:"bbox"`
	XYXY       json.RawMessage `json:"xyxy"`
	Position   json.RawMessage `json:"position"`
}

// ParseResponse decodes a detector payload. The top level may be an envelope
// or a bare array; boxes may be [x1,y1,x2,y2] or {"x1":..,"y1":..,"x2":..,"y2":..}.
func ParseResponse(raw []byte) (*scene.DetectResponse, error) {
	var items []wireDetection
	out := &scene.DetectResponse{}

	if err := json.Unmarshal(raw, &items); err != nil {
		var env wireResponse
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode detector response: %w", err)
		}
		if env.Error != "" {
			return nil, fmt.Errorf("detector error: %s", env.Error)
		}
		switch {
		case env.Detections != nil:
			items = env.Detections
		case env.Predictions != nil:
			items = env.Predictions
		default:
			items = env.Objects
		}
		out.Width, out.Height = env.Width, env.Height
	}

	out.Detections = make([]scene.Detection, 0, len(items))
	for i, item := range items {
		box, err := parseBox(firstRaw(item.Box, item.BBox, item.XYXY, item.Position))
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		out.Detections = append(out.Detections, scene.Detection{
			Label:      firstNonEmpty(item.Label, item.Name, item.Class, item.Object),
			Confidence: firstFloat(item.Confidence, item.Score),
			Box:        box,
		})
	}
	return out, nil
}

func parseBox(raw json.RawMessage) (scene.Box, error) {
	if len(raw) == 0 {
		return scene.Box{}, nil
	}
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err == nil {
		if len(coords) != 4 {
			return scene.Box{}, fmt.Errorf("box needs 4 coordinates, got %d", len(coords))
		}
		return scene.Box{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, nil
	}
	var box scene.Box
	if err := json.Unmarshal(raw, &box); err != nil {
		return scene.Box{}, fmt.Errorf("decode box: %w", err)
	}
	return box, nil
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
