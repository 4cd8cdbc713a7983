package mot3d

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// imageBoxFilter smooths optional image-plane box of a track with 8-D Kalman filter.
// State is [cx, cy, w, h, vx, vy, vw, vh].
type imageBoxFilter struct {
	rect    Rectangle
	tracker *kalman_filter.KalmanBBox
}

func newImageBoxFilter(rect Rectangle) *imageBoxFilter {
	center := rect.Center()

	// Kalman filter props
	uCx := 0.0
	uCy := 0.0
	uW := 0.0
	uH := 0.0
	stdDevA := 2.0
	stdDevMCx := 0.1
	stdDevMCy := 0.1
	stdDevMW := 0.1
	stdDevMH := 0.1
	kf := kalman_filter.NewKalmanBBox(
		1.0, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(center.X, center.Y, rect.Width, rect.Height),
	)
	return &imageBoxFilter{
		rect:    rect,
		tracker: kf,
	}
}

// predict executes Kalman filter prediction step
func (f *imageBoxFilter) predict() {
	f.tracker.Predict()
	f.rect = f.state()
}

// update executes Kalman filter update step with measured box
func (f *imageBoxFilter) update(rect Rectangle) error {
	center := rect.Center()
	err := f.tracker.Update(center.X, center.Y, rect.Width, rect.Height)
	if err != nil {
		return errors.Wrap(err, "Can't update image box tracker")
	}
	f.rect = f.state()
	return nil
}

func (f *imageBoxFilter) state() Rectangle {
	cx, cy, w, h := f.tracker.GetState()
	return NewRect(cx-w/2.0, cy-h/2.0, w, h)
}
