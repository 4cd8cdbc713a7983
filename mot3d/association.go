package mot3d

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (algorithm MatchingAlgorithm) MarshalText() ([]byte, error) {
	if !algorithm.valid() {
		return nil, errors.Errorf("unknown matching algorithm %d", algorithm)
	}
	return []byte(algorithm.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (algorithm *MatchingAlgorithm) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "hungarian":
		*algorithm = MatchingAlgorithmHungarian
	case "greedy":
		*algorithm = MatchingAlgorithmGreedy
	default:
		return errors.Errorf("unknown matching algorithm '%s'", string(text))
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (algorithm *MatchingAlgorithm) UnmarshalYAML(value *yaml.Node) error {
	return algorithm.UnmarshalText([]byte(value.Value))
}

func (algorithm MatchingAlgorithm) valid() bool {
	return algorithm == MatchingAlgorithmHungarian || algorithm == MatchingAlgorithmGreedy
}

// AssociationOptions configures Associate
type AssociationOptions struct {
	Metric          Metric
	Weights         DistanceWeights
	GatingThreshold float64
	Algorithm       MatchingAlgorithm
}

// Match is an accepted pair of track index and detection index
type Match struct {
	Track     int
	Detection int
	Cost      float64
}

// AssociationResult holds outcome of matching predicted tracks to detections.
// Matches are ordered by detection index, unmatched indices are ascending.
type AssociationResult struct {
	Matches             []Match
	UnmatchedTracks     []int
	UnmatchedDetections []int
	// Costs is |tracks| x |detections| cost matrix. It is nil when either side is empty
	Costs [][]float64
}

// Associate matches predicted track boxes to detected boxes.
// Pairs with cost above gating threshold (or non-finite cost) are never matched.
// Hungarian algorithm minimizes total of (cost - threshold) over matched pairs, unmatched tracks and detections add nothing.
func Associate(tracks, detections []Box3D, options AssociationOptions) (AssociationResult, error) {
	costFn, err := options.Metric.CostFunc(options.Weights)
	if err != nil {
		return AssociationResult{}, err
	}
	if len(tracks) == 0 || len(detections) == 0 {
		return AssociationResult{
			Matches:             []Match{},
			UnmatchedTracks:     sequence(len(tracks)),
			UnmatchedDetections: sequence(len(detections)),
		}, nil
	}

	costs := make([][]float64, len(tracks))
	feasible := make([][]bool, len(tracks))
	for i, trk := range tracks {
		costs[i] = make([]float64, len(detections))
		feasible[i] = make([]bool, len(detections))
		for j, det := range detections {
			cost := costFn(trk, det)
			costs[i][j] = cost
			feasible[i][j] = isFinite(cost) && cost <= options.GatingThreshold
		}
	}

	var pairs [][2]int
	switch options.Algorithm {
	case MatchingAlgorithmHungarian:
		pairs = performHungarianMatching(costs, feasible, options.GatingThreshold)
	case MatchingAlgorithmGreedy:
		pairs = performGreedyMatching(costs, feasible)
	default:
		return AssociationResult{}, errors.Errorf("unknown matching algorithm %d", options.Algorithm)
	}

	result := AssociationResult{
		Matches: make([]Match, 0, len(pairs)),
		Costs:   costs,
	}
	matchedTracks := make([]bool, len(tracks))
	matchedDetections := make([]bool, len(detections))
	for _, pair := range pairs {
		trackIdx, detectionIdx := pair[0], pair[1]
		// Gating is re-checked after solving: rejected pair becomes unmatched on both sides
		if !feasible[trackIdx][detectionIdx] {
			continue
		}
		matchedTracks[trackIdx] = true
		matchedDetections[detectionIdx] = true
		result.Matches = append(result.Matches, Match{
			Track:     trackIdx,
			Detection: detectionIdx,
			Cost:      costs[trackIdx][detectionIdx],
		})
	}
	sort.Slice(result.Matches, func(i, j int) bool {
		return result.Matches[i].Detection < result.Matches[j].Detection
	})
	for i, matched := range matchedTracks {
		if !matched {
			result.UnmatchedTracks = append(result.UnmatchedTracks, i)
		}
	}
	for j, matched := range matchedDetections {
		if !matched {
			result.UnmatchedDetections = append(result.UnmatchedDetections, j)
		}
	}
	return result, nil
}

// performHungarianMatching returns a slice of {trackIndex, detectionIndex} pairs.
// Costs are shifted by gating threshold, so every feasible pair is non-positive
func performHungarianMatching(costs [][]float64, feasible [][]bool, threshold float64) [][2]int {
	shifted := make([][]float64, len(costs))
	for i := range costs {
		shifted[i] = make([]float64, len(costs[i]))
		for j := range costs[i] {
			if feasible[i][j] {
				shifted[i][j] = costs[i][j] - threshold
			}
		}
	}
	assignments := hungarianAssign(shifted, feasible)
	matches := make([][2]int, 0, len(assignments))
	for trackIdx, detectionIdx := range assignments {
		if detectionIdx >= 0 {
			matches = append(matches, [2]int{trackIdx, detectionIdx})
		}
	}
	return matches
}

// performGreedyMatching takes feasible pairs from cheapest to most expensive
func performGreedyMatching(costs [][]float64, feasible [][]bool) [][2]int {
	pq := make(candidateHeap, 0)
	for i := range costs {
		for j := range costs[i] {
			if feasible[i][j] {
				pq.Push(candidatePair{track: i, detection: j, cost: costs[i][j]})
			}
		}
	}
	reservedTracks := make(map[int]struct{})
	reservedDetections := make(map[int]struct{})
	matches := make([][2]int, 0)
	for pq.Len() > 0 {
		pair := pq.Pop()
		if _, ok := reservedTracks[pair.track]; ok {
			continue
		}
		if _, ok := reservedDetections[pair.detection]; ok {
			continue
		}
		reservedTracks[pair.track] = struct{}{}
		reservedDetections[pair.detection] = struct{}{}
		matches = append(matches, [2]int{pair.track, pair.detection})
	}
	return matches
}

func sequence(n int) []int {
	seq := make([]int, n)
	for i := range seq {
		seq[i] = i
	}
	return seq
}
