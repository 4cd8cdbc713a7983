package mot3d

import "math"

// maxYawFlips bounds flip-correction loop. For any finite input a single flip is enough,
// the rest guards against NaN and rounding at exact ±π/2.
const maxYawFlips = 4

// WrapAngle wraps angle into (-π, π].
func WrapAngle(angle float64) float64 {
	if angle > -math.Pi && angle <= math.Pi {
		return angle
	}
	wrapped := math.Mod(angle+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// NormalizeYaw corrects measured heading against predicted one.
// Detectors often report an object facing the opposite way, so a measurement that differs
// from prediction by more than π/2 is flipped by π. Measured yaw that is already within π/2
// of prediction is returned unchanged.
func NormalizeYaw(predictedYaw, measuredYaw float64) float64 {
	corrected := measuredYaw
	for i := 0; i < maxYawFlips; i++ {
		diff := WrapAngle(corrected - predictedYaw)
		if math.Abs(diff) <= math.Pi/2 {
			return corrected
		}
		corrected = WrapAngle(corrected + math.Pi)
	}
	return corrected
}

// yawDifference returns signed heading difference after flip correction, always in [-π/2, π/2]
func yawDifference(predictedYaw, measuredYaw float64) float64 {
	return WrapAngle(NormalizeYaw(predictedYaw, measuredYaw) - predictedYaw)
}
