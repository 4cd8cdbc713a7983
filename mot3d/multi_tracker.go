package mot3d

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrFrameOutOfOrder is returned when frame index is not greater than index of the previous frame
	ErrFrameOutOfOrder = errors.New("frame is out of order")
)

// Frame is an input of a single time step
type Frame struct {
	// Strictly increasing frame index
	Index      int64
	Detections []Detection
	// Transform from previous frame coordinates into current frame coordinates. Used only when compensation is enabled
	Ego *EgoMotion
}

// HypothesisResult holds emitted tracks of a single hypothesis
type HypothesisResult struct {
	Name string
	// Sorted by category, then by ID
	Tracks []TrackSnapshot
}

// FrameResult is an output of a single time step
type FrameResult struct {
	Index      int64
	Hypotheses []HypothesisResult
	// Detections skipped in this frame, ascending input index
	Rejected []RejectedDetection
}

// MultiTracker runs independent category trackers for every hypothesis over the same detection stream
type MultiTracker struct {
	mu          sync.Mutex
	cfg         Config
	hypotheses  []HypothesisConfig
	categories  []Category
	parallelism int
	// trackers[hypothesis][category]
	trackers  [][]*Tracker
	started   bool
	lastIndex int64
	logger    zerolog.Logger
	metrics   *Metrics
}

// NewMultiTracker creates trackers for every configured category and hypothesis
func NewMultiTracker(cfg Config, opts ...Option) (*MultiTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Can't create multi-tracker")
	}
	o := newOptions(opts...)
	mt := &MultiTracker{
		cfg:         cfg,
		hypotheses:  cfg.hypotheses(),
		categories:  cfg.categoryNames(),
		parallelism: cfg.Parallelism,
		logger:      o.logger,
		metrics:     o.metrics,
	}
	if mt.parallelism <= 0 {
		mt.parallelism = runtime.GOMAXPROCS(0)
	}
	mt.trackers = make([][]*Tracker, len(mt.hypotheses))
	for h, hypothesis := range mt.hypotheses {
		mt.trackers[h] = make([]*Tracker, len(mt.categories))
		for c, category := range mt.categories {
			tracker, err := NewTracker(
				category,
				hypothesis.apply(cfg.Categories[category]),
				WithLogger(o.logger),
				WithMetrics(o.metrics),
				WithHypothesis(h, hypothesis.Name),
			)
			if err != nil {
				return nil, errors.Wrapf(err, "Can't create multi-tracker, hypothesis '%s'", hypothesis.Name)
			}
			mt.trackers[h][c] = tracker
		}
	}
	return mt, nil
}

// Step processes frame with every tracker. Category pipelines run in parallel.
// Error is returned only when context is done before processing or frame is out of order; tracker state is untouched in both cases.
func (mt *MultiTracker) Step(ctx context.Context, frame Frame) (FrameResult, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return FrameResult{}, errors.Wrap(err, "Frame has not been processed")
	}
	if mt.started && frame.Index <= mt.lastIndex {
		return FrameResult{}, errors.Wrapf(ErrFrameOutOfOrder, "frame %d after frame %d", frame.Index, mt.lastIndex)
	}
	st := time.Now()
	mt.started = true
	mt.lastIndex = frame.Index
	logger := mt.logger.With().Int64("frame", frame.Index).Logger()

	partitions, rejected := mt.partition(frame.Detections, &logger)

	var ego *EgoMotion
	if mt.cfg.EgoMotionCompensation && frame.Ego != nil {
		if frame.Ego.isFinite() {
			egoCopy := *frame.Ego
			ego = &egoCopy
		} else {
			logger.Warn().Msg("Ego-motion is not finite, skipping compensation")
		}
	}

	numCategories := len(mt.categories)
	outputs := make([][]TrackSnapshot, len(mt.hypotheses)*numCategories)
	group := errgroup.Group{}
	group.SetLimit(mt.parallelism)
	for h := range mt.trackers {
		for c, category := range mt.categories {
			tracker := mt.trackers[h][c]
			detections := partitions[category]
			slot := h*numCategories + c
			group.Go(func() error {
				// Detections have been checked already, so tracker never rejects them
				tracks, _ := tracker.MatchObjects(detections, ego)
				outputs[slot] = tracks
				return nil
			})
		}
	}
	_ = group.Wait()

	result := FrameResult{
		Index:      frame.Index,
		Hypotheses: make([]HypothesisResult, len(mt.hypotheses)),
		Rejected:   rejected,
	}
	for h, hypothesis := range mt.hypotheses {
		tracks := make([]TrackSnapshot, 0)
		for c := range mt.categories {
			tracks = append(tracks, outputs[h*numCategories+c]...)
		}
		result.Hypotheses[h] = HypothesisResult{
			Name:   hypothesis.Name,
			Tracks: tracks,
		}
	}
	mt.metrics.observeFrame(time.Since(st))
	return result, nil
}

// partition normalizes scores, rejects malformed detections and groups the rest by category keeping input order
func (mt *MultiTracker) partition(detections []Detection, logger *zerolog.Logger) (map[Category][]Detection, []RejectedDetection) {
	partitions := make(map[Category][]Detection, len(mt.categories))
	rejected := make([]RejectedDetection, 0)
	for i, detection := range detections {
		detection.Score = mt.cfg.ScoreNormalization.Apply(detection.Score)
		reason, ok := RejectUnknownCategory, false
		if trackerCfg, configured := mt.cfg.Categories[detection.Category]; configured {
			reason, ok = trackerCfg.admit(detection)
		}
		if !ok {
			logger.Warn().
				Int("detection", i).
				Str("category", string(detection.Category)).
				Str("reason", reason.String()).
				Msg("Detection rejected")
			mt.metrics.detectionRejected(detection.Category, reason)
			rejected = append(rejected, RejectedDetection{Index: i, Detection: detection, Reason: reason})
			continue
		}
		partitions[detection.Category] = append(partitions[detection.Category], detection)
	}
	return partitions, rejected
}

// Hypotheses returns names of hypotheses in result order
func (mt *MultiTracker) Hypotheses() []string {
	names := make([]string, len(mt.hypotheses))
	for i, hypothesis := range mt.hypotheses {
		names[i] = hypothesis.Name
	}
	return names
}

// Tracker returns category tracker of hypothesis. Returns nil if there is no such tracker.
// Returned tracker must not be used concurrently with Step.
func (mt *MultiTracker) Tracker(hypothesis int, category Category) *Tracker {
	if hypothesis < 0 || hypothesis >= len(mt.trackers) {
		return nil
	}
	idx := sort.Search(len(mt.categories), func(i int) bool {
		return mt.categories[i] >= category
	})
	if idx == len(mt.categories) || mt.categories[idx] != category {
		return nil
	}
	return mt.trackers[hypothesis][idx]
}

// ActiveTrackIDs returns identifiers of live tracks of hypothesis per category
func (mt *MultiTracker) ActiveTrackIDs(hypothesis int) map[Category][]int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if hypothesis < 0 || hypothesis >= len(mt.trackers) {
		return nil
	}
	ids := make(map[Category][]int64, len(mt.categories))
	for c, category := range mt.categories {
		ids[category] = mt.trackers[hypothesis][c].ActiveTrackIDs()
	}
	return ids
}

// CreatedCount returns number of tracks created by hypothesis over all categories
func (mt *MultiTracker) CreatedCount(hypothesis int) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if hypothesis < 0 || hypothesis >= len(mt.trackers) {
		return 0
	}
	total := 0
	for _, tracker := range mt.trackers[hypothesis] {
		total += tracker.CreatedCount()
	}
	return total
}

// Reset drops every track of every hypothesis and accepts any frame index next. Identifiers are not reused
func (mt *MultiTracker) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	for h := range mt.trackers {
		for _, tracker := range mt.trackers[h] {
			tracker.Reset()
		}
	}
	mt.started = false
	mt.lastIndex = 0
}
