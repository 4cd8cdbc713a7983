package mot3d

import (
	"math"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned (wrapped) for any configuration which can't be used for tracking
	ErrInvalidConfig = errors.New("invalid configuration")
)

var configValidator = validator.New()

// NoiseConfig holds Kalman filter priors and noise magnitudes.
// "Position" values apply to the whole measured part of the state: center, heading and extent.
type NoiseConfig struct {
	InitialPositionVariance float64 `yaml:"initial_position_variance" validate:"gt=0"`
	InitialVelocityVariance float64 `yaml:"initial_velocity_variance" validate:"gt=0"`
	ProcessPositionNoise    float64 `yaml:"process_position_noise" validate:"gte=0"`
	ProcessVelocityNoise    float64 `yaml:"process_velocity_noise" validate:"gte=0"`
	MeasurementNoise        float64 `yaml:"measurement_noise" validate:"gt=0"`
}

// TrackerConfig is configuration of a single category tracker
type TrackerConfig struct {
	Metric MetricConfig `yaml:",inline"`
	// Maximum accepted association cost. IoU-type costs are negated overlaps: 0.2 accepts overlap >= -0.2
	GatingThreshold float64           `yaml:"gating_threshold"`
	Algorithm       MatchingAlgorithm `yaml:"algorithm"`
	// Matches needed to confirm a track
	MinHits int `yaml:"min_hits" validate:"gte=1"`
	// Misses tolerated by a confirmed track before deletion
	MaxAge int `yaml:"max_age" validate:"gte=1"`
	// Misses tolerated by a never confirmed track before deletion. Zero means deletion on the first miss
	TentativeMaxMisses int `yaml:"tentative_max_misses" validate:"gte=0"`
	// Emit tracks which are inside occlusion tolerance window
	EmitLost bool `yaml:"emit_lost"`
	// Emit tentative tracks during first MinHits frames after tracker start
	EmitDuringWarmup bool `yaml:"emit_during_warmup"`
	// Detections with (normalized) score below this value are rejected. Nil disables filtering
	ScoreThreshold *float64 `yaml:"score_threshold"`
	// First issued identifier is IDOffset+1
	IDOffset int64 `yaml:"id_offset" validate:"gte=0"`
	// Ground plane centers kept per track and emitted with snapshots. Zero disables history
	MaxTrajectoryLen int         `yaml:"max_trajectory_len" validate:"gte=0"`
	Noise            NoiseConfig `yaml:"noise"`
}

// MetricConfig selects association cost function
type MetricConfig struct {
	Metric  Metric          `yaml:"metric"`
	Weights DistanceWeights `yaml:"distance_weights"`
}

// HypothesisConfig describes parameter variant applied on top of every category config
type HypothesisConfig struct {
	Name                 string  `yaml:"name" validate:"required"`
	GatingThresholdDelta float64 `yaml:"gating_threshold_delta"`
	// Multiplies process noise. Zero is treated as 1
	ProcessNoiseScale float64 `yaml:"process_noise_scale" validate:"gte=0"`
	// Multiplies measurement noise. Zero is treated as 1
	MeasurementNoiseScale float64 `yaml:"measurement_noise_scale" validate:"gte=0"`
	MinHitsDelta          int     `yaml:"min_hits_delta"`
	MaxAgeDelta           int     `yaml:"max_age_delta"`
}

// Config is configuration of MultiTracker
type Config struct {
	// Apply frame's ego-motion to predicted tracks before association
	EgoMotionCompensation bool               `yaml:"ego_motion_compensation"`
	ScoreNormalization    ScoreNormalization `yaml:"score_normalization"`
	// Max number of concurrently running category pipelines. Zero means GOMAXPROCS
	Parallelism int                        `yaml:"parallelism" validate:"gte=0"`
	Categories  map[Category]TrackerConfig `yaml:"categories"`
	// Empty list means single default hypothesis
	Hypotheses []HypothesisConfig `yaml:"hypotheses" validate:"dive"`
}

// DefaultNoiseConfig returns Kalman filter priors and noise magnitudes tuned for KITTI
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		InitialPositionVariance: 10.0,
		InitialVelocityVariance: 10000.0,
		ProcessPositionNoise:    1.0,
		ProcessVelocityNoise:    0.01,
		MeasurementNoise:        1.0,
	}
}

// DefaultTrackerConfig returns tracker configuration with GIoU 3D matching
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Metric: MetricConfig{
			Metric:  MetricGIoU3D,
			Weights: DistanceWeights{Position: 1.0, Yaw: 0.0},
		},
		GatingThreshold:    0.2,
		Algorithm:          MatchingAlgorithmHungarian,
		MinHits:            3,
		MaxAge:             2,
		TentativeMaxMisses: 0,
		EmitLost:           true,
		EmitDuringWarmup:   false,
		MaxTrajectoryLen:   30,
		Noise:              DefaultNoiseConfig(),
	}
}

// DefaultKITTIConfig returns configuration for KITTI categories
func DefaultKITTIConfig() Config {
	car := DefaultTrackerConfig()
	car.EmitDuringWarmup = true

	pedestrian := DefaultTrackerConfig()
	pedestrian.GatingThreshold = 0.4
	pedestrian.MaxAge = 4
	pedestrian.EmitDuringWarmup = true
	pedestrian.IDOffset = 1000

	cyclist := DefaultTrackerConfig()
	cyclist.Metric.Metric = MetricDistance3D
	cyclist.GatingThreshold = 2.0
	cyclist.MaxAge = 4
	cyclist.EmitDuringWarmup = true
	cyclist.IDOffset = 2000

	return Config{
		EgoMotionCompensation: false,
		ScoreNormalization:    ScoreNormalizationNone,
		Categories: map[Category]TrackerConfig{
			CategoryCar:        car,
			CategoryPedestrian: pedestrian,
			CategoryCyclist:    cyclist,
		},
	}
}

// Validate checks tracker configuration
func (cfg TrackerConfig) Validate() error {
	if err := configValidator.Struct(cfg); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if !cfg.Metric.Metric.valid() {
		return errors.Wrapf(ErrInvalidConfig, "unknown metric %d", cfg.Metric.Metric)
	}
	if !cfg.Algorithm.valid() {
		return errors.Wrapf(ErrInvalidConfig, "unknown matching algorithm %d", cfg.Algorithm)
	}
	if !isFinite(cfg.GatingThreshold) {
		return errors.Wrap(ErrInvalidConfig, "gating threshold must be finite")
	}
	if cfg.ScoreThreshold != nil && math.IsNaN(*cfg.ScoreThreshold) {
		return errors.Wrap(ErrInvalidConfig, "score threshold must not be NaN")
	}
	weights := cfg.Metric.Weights
	if !isFinite(weights.Position, weights.Yaw) {
		return errors.Wrap(ErrInvalidConfig, "distance weights must be finite")
	}
	if cfg.Metric.Metric == MetricDistance3D && weights.Position == 0 && weights.Yaw == 0 {
		return errors.Wrap(ErrInvalidConfig, "distance weights must not be all zero")
	}
	noise := cfg.Noise
	if !isFinite(noise.InitialPositionVariance, noise.InitialVelocityVariance, noise.ProcessPositionNoise, noise.ProcessVelocityNoise, noise.MeasurementNoise) {
		return errors.Wrap(ErrInvalidConfig, "noise magnitudes must be finite")
	}
	return nil
}

// Validate checks whole configuration including every category config derived by every hypothesis
func (cfg Config) Validate() error {
	if err := configValidator.Struct(cfg); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if len(cfg.Categories) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no categories configured")
	}
	names := make(map[string]struct{})
	for _, hypothesis := range cfg.hypotheses() {
		if _, ok := names[hypothesis.Name]; ok {
			return errors.Wrapf(ErrInvalidConfig, "duplicate hypothesis '%s'", hypothesis.Name)
		}
		names[hypothesis.Name] = struct{}{}
		if !isFinite(hypothesis.GatingThresholdDelta, hypothesis.ProcessNoiseScale, hypothesis.MeasurementNoiseScale) {
			return errors.Wrapf(ErrInvalidConfig, "hypothesis '%s' has non-finite parameters", hypothesis.Name)
		}
	}
	for _, category := range cfg.categoryNames() {
		if category == "" {
			return errors.Wrap(ErrInvalidConfig, "empty category name")
		}
		for _, hypothesis := range cfg.hypotheses() {
			derived := hypothesis.apply(cfg.Categories[category])
			if err := derived.Validate(); err != nil {
				return errors.Wrapf(err, "category '%s', hypothesis '%s'", category, hypothesis.Name)
			}
		}
	}
	return nil
}

// hypotheses returns configured hypotheses or single no-op hypothesis
func (cfg Config) hypotheses() []HypothesisConfig {
	if len(cfg.Hypotheses) == 0 {
		return []HypothesisConfig{{Name: "default"}}
	}
	return cfg.Hypotheses
}

// categoryNames returns configured categories in ascending order
func (cfg Config) categoryNames() []Category {
	categories := make([]Category, 0, len(cfg.Categories))
	for category := range cfg.Categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i] < categories[j]
	})
	return categories
}

// apply returns category config modified by hypothesis
func (hypothesis HypothesisConfig) apply(cfg TrackerConfig) TrackerConfig {
	processScale := hypothesis.ProcessNoiseScale
	if processScale == 0 {
		processScale = 1.0
	}
	measurementScale := hypothesis.MeasurementNoiseScale
	if measurementScale == 0 {
		measurementScale = 1.0
	}
	cfg.GatingThreshold += hypothesis.GatingThresholdDelta
	cfg.MinHits += hypothesis.MinHitsDelta
	cfg.MaxAge += hypothesis.MaxAgeDelta
	cfg.Noise.ProcessPositionNoise *= processScale
	cfg.Noise.ProcessVelocityNoise *= processScale
	cfg.Noise.MeasurementNoise *= measurementScale
	return cfg
}

// UnmarshalYAML implements yaml.Unmarshaler.
// Listed categories overlay already present ones (or DefaultTrackerConfig for new categories),
// so a document only needs to name what differs.
func (cfg *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	existing := cfg.Categories
	out := plain(*cfg)
	out.Categories = nil
	if err := value.Decode(&out); err != nil {
		return err
	}
	var raw struct {
		Categories map[Category]yaml.Node `yaml:"categories"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	merged := make(map[Category]TrackerConfig, len(existing)+len(raw.Categories))
	for category, trackerCfg := range existing {
		merged[category] = trackerCfg
	}
	for category, node := range raw.Categories {
		base, ok := merged[category]
		if !ok {
			base = DefaultTrackerConfig()
		}
		if err := node.Decode(&base); err != nil {
			return errors.Wrapf(err, "category '%s'", category)
		}
		merged[category] = base
	}
	out.Categories = merged
	*cfg = Config(out)
	return nil
}

// ParseConfig parses YAML document on top of DefaultKITTIConfig and validates the result
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultKITTIConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses YAML configuration file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "Can't read config '%s'", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "Can't load config '%s'", path)
	}
	return cfg, nil
}
