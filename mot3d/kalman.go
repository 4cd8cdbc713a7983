package mot3d

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// State vector layout: [x, y, z, yaw, l, w, h, vx, vy, vz, vyaw]
const (
	stateDim       = 11
	measurementDim = 7
)

const (
	idxX = iota
	idxY
	idxZ
	idxYaw
	idxLength
	idxWidth
	idxHeight
	idxVX
	idxVY
	idxVZ
	idxVYaw
)

// KalmanBox3D is a linear Kalman filter with constant velocity model over box center and heading.
// Extent is part of the state but has no velocity, so prediction keeps it constant.
type KalmanBox3D struct {
	// State vector
	x *mat.VecDense
	// State covariance
	P *mat.Dense
	// Transition matrix
	F *mat.Dense
	// Process noise
	Q *mat.Dense
	// Observation matrix
	H *mat.Dense
	// Measurement noise
	R *mat.Dense
}

// NewKalmanBox3D creates filter with state taken directly from the box. Velocities start at zero.
func NewKalmanBox3D(box Box3D, noise NoiseConfig) *KalmanBox3D {
	x := mat.NewVecDense(stateDim, []float64{
		box.X, box.Y, box.Z, WrapAngle(box.Yaw), box.Length, box.Width, box.Height,
		0, 0, 0, 0,
	})

	// Time step is one frame
	F := identity(stateDim)
	F.Set(idxX, idxVX, 1.0)
	F.Set(idxY, idxVY, 1.0)
	F.Set(idxZ, idxVZ, 1.0)
	F.Set(idxYaw, idxVYaw, 1.0)

	H := mat.NewDense(measurementDim, stateDim, nil)
	for i := 0; i < measurementDim; i++ {
		H.Set(i, i, 1.0)
	}

	P := mat.NewDense(stateDim, stateDim, nil)
	Q := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		if i < measurementDim {
			P.Set(i, i, noise.InitialPositionVariance)
			Q.Set(i, i, noise.ProcessPositionNoise)
		} else {
			P.Set(i, i, noise.InitialVelocityVariance)
			Q.Set(i, i, noise.ProcessVelocityNoise)
		}
	}

	R := identity(measurementDim)
	R.Scale(noise.MeasurementNoise, R)

	return &KalmanBox3D{
		x: x,
		P: P,
		F: F,
		Q: Q,
		H: H,
		R: R,
	}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.0)
	}
	return m
}

// Predict advances state by one frame: x = F*x, P = F*P*F^T + Q
func (kf *KalmanBox3D) Predict() {
	var x mat.VecDense
	x.MulVec(kf.F, kf.x)
	x.SetVec(idxYaw, WrapAngle(x.AtVec(idxYaw)))
	kf.x = &x

	var fp mat.Dense
	fp.Mul(kf.F, kf.P)
	var p mat.Dense
	p.Mul(&fp, kf.F.T())
	p.Add(&p, kf.Q)
	kf.P = &p
}

// innovation returns z - H*x with heading residual wrapped, plus innovation covariance S = H*P*H^T + R
func (kf *KalmanBox3D) innovation(box Box3D) (*mat.VecDense, *mat.Dense) {
	z := measurementVector(box)
	var hx mat.VecDense
	hx.MulVec(kf.H, kf.x)
	var y mat.VecDense
	y.SubVec(z, &hx)
	y.SetVec(idxYaw, WrapAngle(y.AtVec(idxYaw)))

	var pht mat.Dense
	pht.Mul(kf.P, kf.H.T())
	var s mat.Dense
	s.Mul(kf.H, &pht)
	s.Add(&s, kf.R)
	return &y, &s
}

// Update fuses measured box into the state. Heading of the box must already be normalized
// against the predicted heading (see NormalizeYaw).
func (kf *KalmanBox3D) Update(box Box3D) error {
	if !isFinite(box.X, box.Y, box.Z, box.Yaw, box.Length, box.Width, box.Height) {
		return errors.New("measurement is not finite")
	}
	y, s := kf.innovation(box)

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return errors.Wrap(err, "Can't invert innovation covariance")
	}

	// Kalman gain K = P*H^T*S^-1
	var pht mat.Dense
	pht.Mul(kf.P, kf.H.T())
	var K mat.Dense
	K.Mul(&pht, &sInv)

	var correction mat.VecDense
	correction.MulVec(&K, y)
	var x mat.VecDense
	x.AddVec(kf.x, &correction)
	x.SetVec(idxYaw, WrapAngle(x.AtVec(idxYaw)))

	// Joseph form: P = (I - K*H)*P*(I - K*H)^T + K*R*K^T
	var kh mat.Dense
	kh.Mul(&K, kf.H)
	ikh := identity(stateDim)
	ikh.Sub(ikh, &kh)
	var left mat.Dense
	left.Mul(ikh, kf.P)
	var p mat.Dense
	p.Mul(&left, ikh.T())
	var kr mat.Dense
	kr.Mul(&K, kf.R)
	var krk mat.Dense
	krk.Mul(&kr, K.T())
	p.Add(&p, &krk)
	symmetrize(&p)
	if !finiteState(&x, &p) {
		return errors.New("updated state is not finite")
	}
	kf.x = &x
	kf.P = &p
	return nil
}

// applyRigid moves state into another coordinate frame: position and velocities are rotated,
// position is translated, heading is turned by rotation's yaw. Covariance follows the same Jacobian.
func (kf *KalmanBox3D) applyRigid(ego EgoMotion) {
	rot := ego.Rotation
	pos := [3]float64{kf.x.AtVec(idxX), kf.x.AtVec(idxY), kf.x.AtVec(idxZ)}
	vel := [3]float64{kf.x.AtVec(idxVX), kf.x.AtVec(idxVY), kf.x.AtVec(idxVZ)}
	for i := 0; i < 3; i++ {
		p := ego.Translation[i]
		v := 0.0
		for j := 0; j < 3; j++ {
			p += rot[i][j] * pos[j]
			v += rot[i][j] * vel[j]
		}
		kf.x.SetVec(idxX+i, p)
		kf.x.SetVec(idxVX+i, v)
	}
	kf.x.SetVec(idxYaw, WrapAngle(kf.x.AtVec(idxYaw)+ego.Yaw()))

	J := identity(stateDim)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			J.Set(idxX+i, idxX+j, rot[i][j])
			J.Set(idxVX+i, idxVX+j, rot[i][j])
		}
	}
	var jp mat.Dense
	jp.Mul(J, kf.P)
	var p mat.Dense
	p.Mul(&jp, J.T())
	symmetrize(&p)
	kf.P = &p
}

func symmetrize(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := (m.At(i, j) + m.At(j, i)) / 2.0
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func measurementVector(box Box3D) *mat.VecDense {
	return mat.NewVecDense(measurementDim, []float64{
		box.X, box.Y, box.Z, box.Yaw, box.Length, box.Width, box.Height,
	})
}

// Box returns current box estimate
func (kf *KalmanBox3D) Box() Box3D {
	return Box3D{
		X:      kf.x.AtVec(idxX),
		Y:      kf.x.AtVec(idxY),
		Z:      kf.x.AtVec(idxZ),
		Yaw:    kf.x.AtVec(idxYaw),
		Length: kf.x.AtVec(idxLength),
		Width:  kf.x.AtVec(idxWidth),
		Height: kf.x.AtVec(idxHeight),
	}
}

// Velocity returns current velocity estimates (vx, vy, vz) in units per frame
func (kf *KalmanBox3D) Velocity() (float64, float64, float64) {
	return kf.x.AtVec(idxVX), kf.x.AtVec(idxVY), kf.x.AtVec(idxVZ)
}

// YawRate returns heading change per frame
func (kf *KalmanBox3D) YawRate() float64 {
	return kf.x.AtVec(idxVYaw)
}

// IsFinite checks the state and covariance diagonal for NaN/Inf
func (kf *KalmanBox3D) IsFinite() bool {
	return finiteState(kf.x, kf.P)
}

func finiteState(x *mat.VecDense, P *mat.Dense) bool {
	for i := 0; i < stateDim; i++ {
		if !isFinite(x.AtVec(i), P.At(i, i)) {
			return false
		}
	}
	return true
}
