package scene

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"shravan-server-go/internal/domain/staging"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
)

type Options struct {
	MinConfidence float64
	MaxObjects    int
	// FrameWidth and FrameHeight are the reference frame used when the image
	// size is unknown. Area thresholds are absolute pixel areas.
	FrameWidth  int
	FrameHeight int
	SmallArea   float64
	LargeArea   float64
	Timeout     time.Duration
	Logger      *logging.Logger
}

// SceneDetector runs the detection collaborator once per staged image and
// turns its output into a ranked, described scene.
type SceneDetector struct {
	detector Detector
	opts     Options
	logger   *logging.Logger
}

func NewSceneDetector(detector Detector, opts Options) (*SceneDetector, error) {
	const op = "scene:new-detector"
	if detector == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, op, "detector is required")
	}
	if opts.FrameWidth <= 0 || opts.FrameHeight <= 0 {
		return nil, platformerrors.New(platformerrors.KindConfig, op, "reference frame size must be positive")
	}
	if opts.MaxObjects <= 0 {
		opts.MaxObjects = 5
	}
	if opts.LargeArea < opts.SmallArea {
		return nil, platformerrors.New(platformerrors.KindConfig, op, "large area threshold below small area threshold")
	}
	return &SceneDetector{detector: detector, opts: opts, logger: opts.Logger}, nil
}

// Detect never fails. A nil asset yields StatusNoImage; collaborator errors
// yield StatusFailed.
func (s *SceneDetector) Detect(ctx context.Context, asset *staging.Asset) Scene {
	if asset == nil {
		return Scene{Status: StatusNoImage}
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	resp, err := s.detector.Detect(ctx, DetectRequest{ImagePath: asset.Path, Frame: asset.Frame})
	if err == nil && resp == nil {
		err = errors.New("detector returned no response")
	}
	if err != nil {
		err = platformerrors.Wrap(platformerrors.KindDetection, "scene:detect", "detection failed", err)
		s.logger.WarnTag("SCENE", "stage=detect degraded for %s: %v", asset.Name, err)
		return Scene{Status: StatusFailed, Err: err}
	}

	ranked := Rank(resp.Detections, s.opts.MinConfidence)
	if len(ranked) == 0 {
		s.logger.InfoTag("SCENE", "nothing above %.2f in %s", s.opts.MinConfidence, asset.Name)
		return Scene{Status: StatusEmpty, Detections: ranked}
	}

	width, height := s.opts.FrameWidth, s.opts.FrameHeight
	switch {
	case asset.Frame != nil && asset.Frame.Width > 0 && asset.Frame.Height > 0:
		width, height = asset.Frame.Width, asset.Frame.Height
	case resp.Width > 0 && resp.Height > 0:
		width, height = resp.Width, resp.Height
	}

	top := ranked[:min(len(ranked), s.opts.MaxObjects)]
	descriptors := lo.Map(top, func(d Detection, _ int) Descriptor {
		return s.Describe(d, width, height)
	})

	s.logger.InfoTag("SCENE", "%s: %s", asset.Name, strings.Join(lo.Map(descriptors, func(d Descriptor, _ int) string {
		return d.String()
	}), ", "))

	return Scene{Status: StatusDetected, Detections: ranked, Descriptors: descriptors}
}

// Rank drops detections at or below minConfidence and sorts the rest by
// confidence descending. Ties keep emission order.
func Rank(detections []Detection, minConfidence float64) []Detection {
	kept := lo.Filter(detections, func(d Detection, _ int) bool {
		return d.Confidence > minConfidence && strings.TrimSpace(d.Label) != ""
	})
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	return kept
}

// Describe buckets a detection by box center against thirds of the frame and
// by box area against the fixed size thresholds. Only the thirds follow the
// frame size.
func (s *SceneDetector) Describe(d Detection, frameWidth, frameHeight int) Descriptor {
	w, h := float64(frameWidth), float64(frameHeight)
	cx, cy := d.Box.Center()

	horizontal := "center"
	switch {
	case cx < w/3:
		horizontal = "left"
	case cx > 2*w/3:
		horizontal = "right"
	}

	vertical := "middle"
	switch {
	case cy < h/3:
		vertical = "top"
	case cy > 2*h/3:
		vertical = "bottom"
	}

	area := d.Box.Area()
	size := "medium"
	switch {
	case area > s.opts.LargeArea:
		size = "large"
	case area < s.opts.SmallArea:
		size = "small"
	}

	return Descriptor{Label: d.Label, Size: size, Horizontal: horizontal, Vertical: vertical}
}
