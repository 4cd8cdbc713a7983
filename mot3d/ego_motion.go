package mot3d

import "math"

// EgoMotion is a rigid transform that maps coordinates of the previous frame into coordinates
// of the current frame: p_current = Rotation * p_previous + Translation.
type EgoMotion struct {
	Rotation    [3][3]float64
	Translation [3]float64
}

// Pose is a planar pose of the ego vehicle in a fixed world frame
type Pose struct {
	X   float64
	Y   float64
	Z   float64
	Yaw float64
}

// NewEgoMotion creates ego-motion transform from planar displacement: rotation dyaw about Z
// followed by translation (dx, dy, dz).
func NewEgoMotion(dx, dy, dz, dyaw float64) EgoMotion {
	cosYaw, sinYaw := math.Cos(dyaw), math.Sin(dyaw)
	return EgoMotion{
		Rotation: [3][3]float64{
			{cosYaw, -sinYaw, 0},
			{sinYaw, cosYaw, 0},
			{0, 0, 1},
		},
		Translation: [3]float64{dx, dy, dz},
	}
}

// IdentityEgoMotion returns transform which does nothing
func IdentityEgoMotion() EgoMotion {
	return NewEgoMotion(0, 0, 0, 0)
}

// EgoMotionFromMatrix creates ego-motion from homogeneous 4x4 matrix (row-major, last row ignored)
func EgoMotionFromMatrix(m [4][4]float64) EgoMotion {
	ego := EgoMotion{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ego.Rotation[i][j] = m[i][j]
		}
		ego.Translation[i] = m[i][3]
	}
	return ego
}

// EgoMotionFromPoses creates transform from ego frame at previous pose into ego frame at current pose.
// Both poses are expressed in the same world frame.
func EgoMotionFromPoses(previous, current Pose) EgoMotion {
	// p_world = R_prev * p_prev + t_prev and p_curr = R_curr^T * (p_world - t_curr)
	dyaw := WrapAngle(previous.Yaw - current.Yaw)
	cosCurr, sinCurr := math.Cos(current.Yaw), math.Sin(current.Yaw)
	dx := previous.X - current.X
	dy := previous.Y - current.Y
	return NewEgoMotion(
		cosCurr*dx+sinCurr*dy,
		-sinCurr*dx+cosCurr*dy,
		previous.Z-current.Z,
		dyaw,
	)
}

// Yaw returns heading change introduced by rotation
func (ego EgoMotion) Yaw() float64 {
	return math.Atan2(ego.Rotation[1][0], ego.Rotation[0][0])
}

// Apply transforms box into current frame
func (ego EgoMotion) Apply(box Box3D) Box3D {
	pos := [3]float64{box.X, box.Y, box.Z}
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = ego.Translation[i]
		for j := 0; j < 3; j++ {
			out[i] += ego.Rotation[i][j] * pos[j]
		}
	}
	box.X, box.Y, box.Z = out[0], out[1], out[2]
	box.Yaw = WrapAngle(box.Yaw + ego.Yaw())
	return box
}

func (ego EgoMotion) isFinite() bool {
	for i := 0; i < 3; i++ {
		if !isFinite(ego.Translation[i], ego.Rotation[i][0], ego.Rotation[i][1], ego.Rotation[i][2]) {
			return false
		}
	}
	return true
}
