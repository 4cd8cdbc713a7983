package mot3d

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TrackStatus is a lifecycle state of a track. Deleted tracks are removed from tracker, so there is no status for them
type TrackStatus uint16

const (
	// TrackStatusTentative is a just born track which has not been matched enough times yet
	TrackStatusTentative TrackStatus = iota
	// TrackStatusConfirmed is a track matched in the current frame after it has been confirmed once
	TrackStatusConfirmed
	// TrackStatusLost is a confirmed track which has not been matched in the current frame
	TrackStatusLost
)

func (status TrackStatus) String() string {
	switch status {
	case TrackStatusTentative:
		return "tentative"
	case TrackStatusConfirmed:
		return "confirmed"
	case TrackStatusLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Track is a tracked object with 3D Kalman filter state
type Track struct {
	id         int64
	uuid       uuid.UUID
	category   Category
	hypothesis int
	status     TrackStatus
	// Has been confirmed at least once
	confirmed bool
	hits      int
	misses    int
	age       int
	score     float64
	alpha     *float64
	kf        *KalmanBox3D
	// Optional image plane box filter
	imageBox *imageBoxFilter
	// Ground plane centers of the last updates in the current coordinate frame
	trajectory       []Point
	maxTrajectoryLen int
}

// newTrack creates track with state taken directly from detection. Lifecycle counters are set by policy
func newTrack(id int64, hypothesis int, detection Detection, cfg TrackerConfig) *Track {
	track := Track{
		id:               id,
		uuid:             uuid.New(),
		category:         detection.Category,
		hypothesis:       hypothesis,
		status:           TrackStatusTentative,
		score:            detection.Score,
		alpha:            copyFloat(detection.Alpha),
		kf:               NewKalmanBox3D(detection.Box, cfg.Noise),
		trajectory:       make([]Point, 0, cfg.MaxTrajectoryLen),
		maxTrajectoryLen: cfg.MaxTrajectoryLen,
	}
	if detection.BBox2D != nil {
		track.imageBox = newImageBoxFilter(*detection.BBox2D)
	}
	track.appendTrajectory()
	return &track
}

// predict advances track state by one frame
func (track *Track) predict() {
	track.kf.Predict()
	if track.imageBox != nil {
		track.imageBox.predict()
	}
	track.age++
}

// applyEgoMotion moves predicted state into the current frame. Trajectory is moved as well
func (track *Track) applyEgoMotion(ego EgoMotion) {
	track.kf.applyRigid(ego)
	for i, point := range track.trajectory {
		moved := ego.Apply(Box3D{X: point.X, Y: point.Y})
		track.trajectory[i] = NewPoint(moved.X, moved.Y)
	}
}

// update fuses detection into track state. Measured heading is flipped towards predicted heading first.
// On error the state is left untouched.
func (track *Track) update(detection Detection) error {
	measurement := detection.Box
	measurement.Yaw = NormalizeYaw(track.kf.Box().Yaw, measurement.Yaw)
	err := track.kf.Update(measurement)
	if err != nil {
		return errors.Wrap(err, "Can't update object tracker")
	}
	track.score = detection.Score
	if detection.Alpha != nil {
		track.alpha = copyFloat(detection.Alpha)
	}
	if detection.BBox2D != nil {
		if track.imageBox == nil {
			track.imageBox = newImageBoxFilter(*detection.BBox2D)
		} else if err := track.imageBox.update(*detection.BBox2D); err != nil {
			// Image box is auxiliary, restart its filter from measurement
			track.imageBox = newImageBoxFilter(*detection.BBox2D)
		}
	}
	track.appendTrajectory()
	return nil
}

func (track *Track) appendTrajectory() {
	if track.maxTrajectoryLen == 0 {
		return
	}
	box := track.kf.Box()
	track.trajectory = append(track.trajectory, NewPoint(box.X, box.Y))
	if len(track.trajectory) > track.maxTrajectoryLen {
		track.trajectory = track.trajectory[len(track.trajectory)-track.maxTrajectoryLen:]
	}
}

// TrackSnapshot is an immutable copy of track emitted to consumers
type TrackSnapshot struct {
	ID         int64
	UUID       uuid.UUID
	Category   Category
	Hypothesis int
	Status     TrackStatus
	Box        Box3D
	// Velocity per frame (vx, vy, vz)
	Velocity [3]float64
	// Heading change per frame
	YawRate float64
	// Score of the last matched detection
	Score  float64
	Age    int
	Hits   int
	Misses int
	BBox2D *Rectangle
	Alpha  *float64
	// Ground plane centers of the last updates in the current coordinate frame, oldest first
	Trajectory []Point
}

// snapshot returns copy of track state
func (track *Track) snapshot() TrackSnapshot {
	vx, vy, vz := track.kf.Velocity()
	snapshot := TrackSnapshot{
		ID:         track.id,
		UUID:       track.uuid,
		Category:   track.category,
		Hypothesis: track.hypothesis,
		Status:     track.status,
		Box:        track.kf.Box(),
		Velocity:   [3]float64{vx, vy, vz},
		YawRate:    track.kf.YawRate(),
		Score:      track.score,
		Age:        track.age,
		Hits:       track.hits,
		Misses:     track.misses,
		Alpha:      copyFloat(track.alpha),
		Trajectory: append([]Point(nil), track.trajectory...),
	}
	if track.imageBox != nil {
		rect := track.imageBox.rect
		snapshot.BBox2D = &rect
	}
	return snapshot
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
