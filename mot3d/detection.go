package mot3d

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Category is an object class label
type Category string

const (
	CategoryCar        Category = "Car"
	CategoryPedestrian Category = "Pedestrian"
	CategoryCyclist    Category = "Cyclist"
)

// Detection is a single-frame 3D observation coming from a detector
type Detection struct {
	Category Category
	Box      Box3D
	// Confidence score (or logit when sigmoid normalization is enabled)
	Score float64
	// Optional image plane box
	BBox2D *Rectangle
	// Optional observation angle
	Alpha *float64
}

// RejectReason tells why detection was skipped
type RejectReason uint16

const (
	// RejectNonFinite - pose, extent or score contains NaN or Inf
	RejectNonFinite RejectReason = iota + 1
	// RejectNonPositiveExtent - length, width or height is not positive
	RejectNonPositiveExtent
	// RejectUnknownCategory - category is empty or has no configured tracker
	RejectUnknownCategory
	// RejectLowScore - score is below configured threshold
	RejectLowScore
)

func (reason RejectReason) String() string {
	switch reason {
	case RejectNonFinite:
		return "non_finite"
	case RejectNonPositiveExtent:
		return "non_positive_extent"
	case RejectUnknownCategory:
		return "unknown_category"
	case RejectLowScore:
		return "low_score"
	default:
		return "unknown"
	}
}

// RejectedDetection is detection which has not been passed to association
type RejectedDetection struct {
	// Index in the input slice
	Index     int
	Detection Detection
	Reason    RejectReason
}

// validate checks detection geometry. Category is checked by the caller since it depends on configuration
func (detection Detection) validate() (RejectReason, bool) {
	box := detection.Box
	if !isFinite(box.X, box.Y, box.Z, box.Yaw, box.Length, box.Width, box.Height, detection.Score) {
		return RejectNonFinite, false
	}
	if detection.Alpha != nil && !isFinite(*detection.Alpha) {
		return RejectNonFinite, false
	}
	if detection.BBox2D != nil {
		rect := detection.BBox2D
		if !isFinite(rect.X, rect.Y, rect.Width, rect.Height) {
			return RejectNonFinite, false
		}
	}
	if box.Length <= 0 || box.Width <= 0 || box.Height <= 0 {
		return RejectNonPositiveExtent, false
	}
	return 0, true
}

// ScoreNormalization is a transformation of raw detector scores applied at ingestion
type ScoreNormalization uint16

const (
	// ScoreNormalizationNone keeps scores as is
	ScoreNormalizationNone ScoreNormalization = iota
	// ScoreNormalizationSigmoid treats scores as logits
	ScoreNormalizationSigmoid
)

// Logits are clipped to avoid overflow in exp
const maxLogit = 50.0

func (normalization ScoreNormalization) String() string {
	switch normalization {
	case ScoreNormalizationNone:
		return "none"
	case ScoreNormalizationSigmoid:
		return "sigmoid"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (normalization ScoreNormalization) MarshalText() ([]byte, error) {
	if normalization != ScoreNormalizationNone && normalization != ScoreNormalizationSigmoid {
		return nil, errors.Errorf("unknown score normalization %d", normalization)
	}
	return []byte(normalization.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (normalization *ScoreNormalization) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "none":
		*normalization = ScoreNormalizationNone
	case "sigmoid":
		*normalization = ScoreNormalizationSigmoid
	default:
		return errors.Errorf("unknown score normalization '%s'", string(text))
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (normalization *ScoreNormalization) UnmarshalYAML(value *yaml.Node) error {
	return normalization.UnmarshalText([]byte(value.Value))
}

// Apply returns normalized score
func (normalization ScoreNormalization) Apply(score float64) float64 {
	if !isFinite(score) {
		return score
	}
	switch normalization {
	case ScoreNormalizationSigmoid:
		logit := math.Max(-maxLogit, math.Min(maxLogit, score))
		return 1.0 / (1.0 + math.Exp(-logit))
	default:
		return score
	}
}
