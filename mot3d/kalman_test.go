package mot3d

import (
	"math"
	"testing"
)

func TestNewKalmanBox3D(t *testing.T) {
	box := NewBox3D(10, 0, 0, 0, 4.2, 1.8, 1.6)
	kf := NewKalmanBox3D(box, DefaultNoiseConfig())
	if kf.Box() != box {
		t.Errorf("Expected initial state %v, got %v", box, kf.Box())
	}
	vx, vy, vz := kf.Velocity()
	if vx != 0 || vy != 0 || vz != 0 || kf.YawRate() != 0 {
		t.Errorf("Expected zero initial velocity, got (%f, %f, %f, %f)", vx, vy, vz, kf.YawRate())
	}
	if kf.P.At(idxX, idxX) != 10.0 {
		t.Errorf("Expected position variance 10, got %f", kf.P.At(idxX, idxX))
	}
	if kf.P.At(idxVX, idxVX) != 10000.0 {
		t.Errorf("Expected velocity variance 10000, got %f", kf.P.At(idxVX, idxVX))
	}
}

func TestKalmanBox3DPredict(t *testing.T) {
	box := NewBox3D(10, 0, 0, 0, 4.2, 1.8, 1.6)
	kf := NewKalmanBox3D(box, DefaultNoiseConfig())
	kf.Predict()
	if kf.Box() != box {
		t.Errorf("Expected box to stay in place without velocity, got %v", kf.Box())
	}
	// P_xx + 2*P_x,vx + P_vx,vx + Q_xx
	if math.Abs(kf.P.At(idxX, idxX)-10011.0) > eps {
		t.Errorf("Expected predicted position variance 10011, got %f", kf.P.At(idxX, idxX))
	}
	if math.Abs(kf.P.At(idxVX, idxVX)-10000.01) > eps {
		t.Errorf("Expected predicted velocity variance 10000.01, got %f", kf.P.At(idxVX, idxVX))
	}
	// Extent has no velocity
	if math.Abs(kf.P.At(idxLength, idxLength)-11.0) > eps {
		t.Errorf("Expected predicted length variance 11, got %f", kf.P.At(idxLength, idxLength))
	}
}

func TestKalmanBox3DUpdate(t *testing.T) {
	kf := NewKalmanBox3D(NewBox3D(10, 0, 0, 0, 4.2, 1.8, 1.6), DefaultNoiseConfig())
	kf.Predict()
	err := kf.Update(NewBox3D(10.3, 0, 0, 0.02, 4.2, 1.8, 1.6))
	if err != nil {
		t.Error(err)
		return
	}
	box := kf.Box()
	if math.Abs(box.X-10.29997004) > eps {
		t.Errorf("Expected x 10.29997004, got %f", box.X)
	}
	if math.Abs(box.Yaw-0.01999800) > eps {
		t.Errorf("Expected yaw 0.019998, got %f", box.Yaw)
	}
	vx, _, _ := kf.Velocity()
	if math.Abs(vx-0.29964043) > eps {
		t.Errorf("Expected vx 0.29964043, got %f", vx)
	}
	if math.Abs(kf.YawRate()-0.01997603) > eps {
		t.Errorf("Expected yaw rate 0.01997603, got %f", kf.YawRate())
	}
	if kf.P.At(idxX, idxX) >= 1.0 {
		t.Errorf("Expected position variance below measurement noise after update, got %f", kf.P.At(idxX, idxX))
	}

	kf.Predict()
	if math.Abs(kf.Box().X-10.59961047) > eps {
		t.Errorf("Expected extrapolated x 10.59961047, got %f", kf.Box().X)
	}
}

func TestKalmanBox3DUpdateConfidence(t *testing.T) {
	// Small prior moves little, large prior moves close to measurement
	confident := DefaultNoiseConfig()
	confident.InitialPositionVariance = 0.01
	uncertain := DefaultNoiseConfig()
	uncertain.InitialPositionVariance = 100.0

	measurement := NewBox3D(1, 0, 0, 0, 4, 2, 1.5)
	kfConfident := NewKalmanBox3D(NewBox3D(0, 0, 0, 0, 4, 2, 1.5), confident)
	kfUncertain := NewKalmanBox3D(NewBox3D(0, 0, 0, 0, 4, 2, 1.5), uncertain)
	if err := kfConfident.Update(measurement); err != nil {
		t.Error(err)
		return
	}
	if err := kfUncertain.Update(measurement); err != nil {
		t.Error(err)
		return
	}
	// Gains are P/(P+R)
	if math.Abs(kfConfident.Box().X-0.01/1.01) > eps {
		t.Errorf("Expected x %f, got %f", 0.01/1.01, kfConfident.Box().X)
	}
	if math.Abs(kfUncertain.Box().X-100.0/101.0) > eps {
		t.Errorf("Expected x %f, got %f", 100.0/101.0, kfUncertain.Box().X)
	}
}

func TestKalmanBox3DYawInnovationWrap(t *testing.T) {
	kf := NewKalmanBox3D(NewBox3D(0, 0, 0, math.Pi-0.05, 4, 2, 1.5), DefaultNoiseConfig())
	// Across the ±π seam the residual is 0.1, not -2π+0.1
	err := kf.Update(NewBox3D(0, 0, 0, -math.Pi+0.05, 4, 2, 1.5))
	if err != nil {
		t.Error(err)
		return
	}
	yaw := kf.Box().Yaw
	if math.Abs(WrapAngle(yaw-math.Pi)) > 0.06 {
		t.Errorf("Expected yaw close to π, got %f", yaw)
	}
}

func TestKalmanBox3DUpdateNonFinite(t *testing.T) {
	box := NewBox3D(1, 2, 3, 0, 4, 2, 1.5)
	kf := NewKalmanBox3D(box, DefaultNoiseConfig())
	err := kf.Update(NewBox3D(math.NaN(), 0, 0, 0, 4, 2, 1.5))
	if err == nil {
		t.Errorf("Expected error for non-finite measurement")
	}
	if kf.Box() != box {
		t.Errorf("Expected state to stay untouched, got %v", kf.Box())
	}
	if !kf.IsFinite() {
		t.Errorf("Expected finite state")
	}
}

func TestKalmanBox3DUpdateOverflow(t *testing.T) {
	box := NewBox3D(-1.7e308, 0, 0, 0, 4, 2, 1.5)
	kf := NewKalmanBox3D(box, DefaultNoiseConfig())
	// Measurement is finite, but the residual overflows
	err := kf.Update(NewBox3D(1.7e308, 0, 0, 0, 4, 2, 1.5))
	if err == nil {
		t.Errorf("Expected error for diverged update")
	}
	if kf.Box() != box {
		t.Errorf("Expected state to stay untouched, got %v", kf.Box())
	}
	if !kf.IsFinite() {
		t.Errorf("Expected finite state after rejected update")
	}
}

func TestKalmanBox3DApplyRigid(t *testing.T) {
	kf := NewKalmanBox3D(NewBox3D(1, 0, 0, 0, 4, 2, 1.5), DefaultNoiseConfig())
	kf.x.SetVec(idxVX, 0.5)
	kf.P.Set(idxX, idxX, 1.0)
	kf.P.Set(idxY, idxY, 4.0)

	kf.applyRigid(NewEgoMotion(1, 2, 0, math.Pi/2))

	box := kf.Box()
	if math.Abs(box.X-1.0) > eps || math.Abs(box.Y-3.0) > eps {
		t.Errorf("Expected position (1, 3), got (%f, %f)", box.X, box.Y)
	}
	if math.Abs(box.Yaw-math.Pi/2) > eps {
		t.Errorf("Expected yaw π/2, got %f", box.Yaw)
	}
	vx, vy, _ := kf.Velocity()
	if math.Abs(vx) > eps || math.Abs(vy-0.5) > eps {
		t.Errorf("Expected velocity (0, 0.5), got (%f, %f)", vx, vy)
	}
	if math.Abs(kf.P.At(idxX, idxX)-4.0) > eps || math.Abs(kf.P.At(idxY, idxY)-1.0) > eps {
		t.Errorf("Expected swapped position variances (4, 1), got (%f, %f)", kf.P.At(idxX, idxX), kf.P.At(idxY, idxY))
	}
}
