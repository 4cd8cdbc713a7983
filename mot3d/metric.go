package mot3d

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Metric is a cost function type used for matching predicted tracks to detections
type Metric uint16

const (
	// MetricGIoU3D uses negated generalized 3D IoU
	MetricGIoU3D Metric = iota
	// MetricIoU3D uses negated volumetric 3D IoU
	MetricIoU3D
	// MetricGIoUBEV uses negated generalized IoU of ground plane footprints
	MetricGIoUBEV
	// MetricIoUBEV uses negated IoU of ground plane footprints
	MetricIoUBEV
	// MetricDistance3D uses weighted Euclidean distance over center and heading
	MetricDistance3D
)

var metricNames = map[Metric]string{
	MetricGIoU3D:     "giou_3d",
	MetricIoU3D:      "iou_3d",
	MetricGIoUBEV:    "giou_bev",
	MetricIoUBEV:     "iou_bev",
	MetricDistance3D: "dist_3d",
}

// CostFunc returns matching cost between predicted box of a track and detected box. Lower is better.
type CostFunc func(predicted, detected Box3D) float64

// DistanceWeights holds weights for MetricDistance3D
type DistanceWeights struct {
	Position float64 `yaml:"position" validate:"gte=0"`
	Yaw      float64 `yaml:"yaw" validate:"gte=0"`
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (m Metric) MarshalText() ([]byte, error) {
	if _, ok := metricNames[m]; !ok {
		return nil, errors.Errorf("unknown metric %d", m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Metric) UnmarshalText(text []byte) error {
	value := strings.ToLower(strings.TrimSpace(string(text)))
	for metric, name := range metricNames {
		if name == value {
			*m = metric
			return nil
		}
	}
	return errors.Errorf("unknown metric '%s'", value)
}

// UnmarshalYAML implements yaml.Unmarshaler
func (m *Metric) UnmarshalYAML(value *yaml.Node) error {
	return m.UnmarshalText([]byte(value.Value))
}

func (m Metric) valid() bool {
	_, ok := metricNames[m]
	return ok
}

// CostFunc returns cost function for the metric
func (m Metric) CostFunc(weights DistanceWeights) (CostFunc, error) {
	switch m {
	case MetricGIoU3D:
		return func(predicted, detected Box3D) float64 {
			return -GIoU3D(predicted, detected)
		}, nil
	case MetricIoU3D:
		return func(predicted, detected Box3D) float64 {
			return -IoU3D(predicted, detected)
		}, nil
	case MetricGIoUBEV:
		return func(predicted, detected Box3D) float64 {
			return -GIoUBEV(predicted, detected)
		}, nil
	case MetricIoUBEV:
		return func(predicted, detected Box3D) float64 {
			return -IoUBEV(predicted, detected)
		}, nil
	case MetricDistance3D:
		return func(predicted, detected Box3D) float64 {
			d := centerDistance3D(predicted, detected)
			dyaw := yawDifference(predicted.Yaw, detected.Yaw)
			return math.Sqrt(weights.Position*d*d + weights.Yaw*dyaw*dyaw)
		}, nil
	default:
		return nil, errors.Errorf("unknown metric %d", m)
	}
}
