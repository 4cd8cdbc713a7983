package mot3d

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type options struct {
	logger         zerolog.Logger
	metrics        *Metrics
	hypothesis     int
	hypothesisName string
}

// Option configures Tracker and MultiTracker
type Option func(*options)

// WithLogger sets logger. Default is zerolog.Nop()
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithMetrics sets Prometheus metrics. Nil disables metrics
func WithMetrics(metrics *Metrics) Option {
	return func(opts *options) {
		opts.metrics = metrics
	}
}

// WithHypothesis sets hypothesis index and name which are stored in tracks and used in logs and metrics
func WithHypothesis(index int, name string) Option {
	return func(opts *options) {
		opts.hypothesis = index
		opts.hypothesisName = name
	}
}

func newOptions(opts ...Option) options {
	result := options{
		logger:         zerolog.Nop(),
		hypothesisName: "default",
	}
	for _, opt := range opts {
		opt(&result)
	}
	return result
}

// Tracker is an online 3D multi-object tracker for a single category.
// It has no internal locking: it must be driven by one goroutine at a time.
type Tracker struct {
	category    Category
	cfg         TrackerConfig
	association AssociationOptions
	policy      lifecyclePolicy
	// Live tracks in ascending ID order
	tracks []*Track
	// Last issued identifier
	lastID     int64
	created    int
	frameCount int
	hypothesis int
	// Hypothesis name used as logs field and metrics label
	hypothesisName string
	logger         zerolog.Logger
	metrics        *Metrics
}

// NewTracker creates tracker for category
func NewTracker(category Category, cfg TrackerConfig, opts ...Option) (*Tracker, error) {
	if category == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "empty category name")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "Can't create tracker for category '%s'", category)
	}
	o := newOptions(opts...)
	tracker := &Tracker{
		category: category,
		cfg:      cfg,
		association: AssociationOptions{
			Metric:          cfg.Metric.Metric,
			Weights:         cfg.Metric.Weights,
			GatingThreshold: cfg.GatingThreshold,
			Algorithm:       cfg.Algorithm,
		},
		policy:         newLifecyclePolicy(cfg),
		tracks:         make([]*Track, 0),
		lastID:         cfg.IDOffset,
		hypothesis:     o.hypothesis,
		hypothesisName: o.hypothesisName,
		logger: o.logger.With().
			Str("category", string(category)).
			Str("hypothesis", o.hypothesisName).
			Logger(),
		metrics: o.metrics,
	}
	tracker.logger.Info().
		Str("metric", cfg.Metric.Metric.String()).
		Str("algorithm", cfg.Algorithm.String()).
		Float64("threshold", cfg.GatingThreshold).
		Int("min_hits", cfg.MinHits).
		Int("max_age", cfg.MaxAge).
		Msg("Tracker initialized")
	return tracker, nil
}

// GetCategory returns tracker's category
func (tracker *Tracker) GetCategory() Category {
	return tracker.category
}

// MatchObjects processes one frame: predicts every track, optionally moves predictions by ego-motion,
// associates them with detections, updates matched tracks, ages unmatched ones and creates new tracks.
// Returns tracks exposed by output policy (ascending ID) and detections which have been skipped.
func (tracker *Tracker) MatchObjects(detections []Detection, ego *EgoMotion) ([]TrackSnapshot, []RejectedDetection) {
	tracker.frameCount++
	logger := tracker.logger.With().Int("frame", tracker.frameCount).Logger()

	accepted, rejected := tracker.filterDetections(detections, &logger)

	for _, track := range tracker.tracks {
		track.predict()
	}
	if ego != nil {
		if ego.isFinite() {
			for _, track := range tracker.tracks {
				track.applyEgoMotion(*ego)
			}
		} else {
			logger.Warn().Msg("Ego-motion is not finite, skipping compensation")
		}
	}
	tracker.dropDiverged(&logger)

	predicted := make([]Box3D, len(tracker.tracks))
	for i, track := range tracker.tracks {
		predicted[i] = track.kf.Box()
	}
	measured := make([]Box3D, len(accepted))
	for i, detection := range accepted {
		measured[i] = detection.Box
	}
	result, err := Associate(predicted, measured, tracker.association)
	if err != nil {
		// Configuration is validated on creation, so it should never happen
		logger.Error().Err(err).Msg("Can't associate detections")
		result = AssociationResult{
			UnmatchedTracks:     sequence(len(predicted)),
			UnmatchedDetections: sequence(len(measured)),
		}
	}

	missed := make([]bool, len(tracker.tracks))
	for _, idx := range result.UnmatchedTracks {
		missed[idx] = true
	}
	for _, match := range result.Matches {
		track := tracker.tracks[match.Track]
		err := track.update(accepted[match.Detection])
		if err != nil {
			// Track coasts this frame. Detection is consumed to avoid duplicate of the same object
			logger.Warn().Err(err).Int64("track_id", track.id).Msg("Can't update track")
			missed[match.Track] = true
			continue
		}
		tracker.policy.onMatch(track)
	}

	alive := tracker.tracks[:0]
	for i, track := range tracker.tracks {
		if missed[i] && tracker.policy.onMiss(track) {
			logger.Debug().Int64("track_id", track.id).Int("age", track.age).Msg("Track deleted")
			tracker.metrics.trackDeleted(tracker.category, tracker.hypothesisName)
			continue
		}
		alive = append(alive, track)
	}
	for i := len(alive); i < len(tracker.tracks); i++ {
		tracker.tracks[i] = nil
	}
	tracker.tracks = alive

	for _, idx := range result.UnmatchedDetections {
		tracker.register(accepted[idx], &logger)
	}

	tracker.metrics.setLiveTracks(tracker.category, tracker.hypothesisName, len(tracker.tracks))
	return tracker.emit(), rejected
}

// dropDiverged deletes tracks whose filter state is no longer finite
func (tracker *Tracker) dropDiverged(logger *zerolog.Logger) {
	alive := tracker.tracks[:0]
	for _, track := range tracker.tracks {
		if !track.kf.IsFinite() {
			logger.Warn().Int64("track_id", track.id).Msg("Track state diverged, deleting track")
			tracker.metrics.trackDeleted(tracker.category, tracker.hypothesisName)
			continue
		}
		alive = append(alive, track)
	}
	for i := len(alive); i < len(tracker.tracks); i++ {
		tracker.tracks[i] = nil
	}
	tracker.tracks = alive
}

// filterDetections splits detections into accepted ones (in input order) and rejected ones
func (tracker *Tracker) filterDetections(detections []Detection, logger *zerolog.Logger) ([]Detection, []RejectedDetection) {
	accepted := make([]Detection, 0, len(detections))
	rejected := make([]RejectedDetection, 0)
	for i, detection := range detections {
		reason, ok := RejectUnknownCategory, false
		if detection.Category == tracker.category {
			reason, ok = tracker.cfg.admit(detection)
		}
		if !ok {
			logger.Warn().Int("detection", i).Str("reason", reason.String()).Msg("Detection rejected")
			tracker.metrics.detectionRejected(tracker.category, reason)
			rejected = append(rejected, RejectedDetection{Index: i, Detection: detection, Reason: reason})
			continue
		}
		accepted = append(accepted, detection)
	}
	return accepted, rejected
}

// admit checks detection geometry and score
func (cfg TrackerConfig) admit(detection Detection) (RejectReason, bool) {
	if reason, ok := detection.validate(); !ok {
		return reason, false
	}
	if cfg.ScoreThreshold != nil && detection.Score < *cfg.ScoreThreshold {
		return RejectLowScore, false
	}
	return 0, true
}

// register creates new track for detection
func (tracker *Tracker) register(detection Detection, logger *zerolog.Logger) {
	tracker.lastID++
	track := newTrack(tracker.lastID, tracker.hypothesis, detection, tracker.cfg)
	tracker.policy.onBirth(track)
	tracker.tracks = append(tracker.tracks, track)
	tracker.created++
	tracker.metrics.trackCreated(tracker.category, tracker.hypothesisName)
	logger.Debug().Int64("track_id", track.id).Str("status", track.status.String()).Msg("Track created")
}

func (tracker *Tracker) emit() []TrackSnapshot {
	snapshots := make([]TrackSnapshot, 0, len(tracker.tracks))
	for _, track := range tracker.tracks {
		if tracker.policy.emits(track, tracker.frameCount) {
			snapshots = append(snapshots, track.snapshot())
		}
	}
	return snapshots
}

// Tracks returns snapshots of every live track including tentative ones (ascending ID)
func (tracker *Tracker) Tracks() []TrackSnapshot {
	snapshots := make([]TrackSnapshot, len(tracker.tracks))
	for i, track := range tracker.tracks {
		snapshots[i] = track.snapshot()
	}
	return snapshots
}

// ActiveTrackIDs returns identifiers of live tracks (ascending)
func (tracker *Tracker) ActiveTrackIDs() []int64 {
	ids := make([]int64, len(tracker.tracks))
	for i, track := range tracker.tracks {
		ids[i] = track.id
	}
	return ids
}

// CreatedCount returns number of tracks created since tracker creation
func (tracker *Tracker) CreatedCount() int {
	return tracker.created
}

// Reset drops every track and restarts warm-up. Identifiers are not reused after reset
func (tracker *Tracker) Reset() {
	for _, track := range tracker.tracks {
		tracker.metrics.trackDeleted(tracker.category, tracker.hypothesisName)
		tracker.logger.Debug().Int64("track_id", track.id).Msg("Track deleted on reset")
	}
	tracker.tracks = make([]*Track, 0)
	tracker.frameCount = 0
	tracker.metrics.setLiveTracks(tracker.category, tracker.hypothesisName, 0)
}
