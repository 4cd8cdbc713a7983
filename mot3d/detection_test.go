package mot3d

import (
	"math"
	"testing"
)

func TestDetectionValidate(t *testing.T) {
	valid := carDetection(1, 2)
	if reason, ok := valid.validate(); !ok {
		t.Errorf("Expected detection to be valid, got %s", reason)
	}

	alpha := math.NaN()
	withAlpha := carDetection(1, 2)
	withAlpha.Alpha = &alpha
	rect := NewRect(0, 0, math.Inf(1), 10)
	withRect := carDetection(1, 2)
	withRect.BBox2D = &rect
	infScore := carDetection(1, 2)
	infScore.Score = math.Inf(-1)
	nanYaw := carDetection(1, 2)
	nanYaw.Box.Yaw = math.NaN()
	zeroWidth := carDetection(1, 2)
	zeroWidth.Box.Width = 0
	negativeHeight := carDetection(1, 2)
	negativeHeight.Box.Height = -1.6
	// Non-finite values are reported before extent
	both := carDetection(1, 2)
	both.Box.Length = math.NaN()

	cases := []struct {
		name      string
		detection Detection
		reason    RejectReason
	}{
		{"alpha", withAlpha, RejectNonFinite},
		{"image box", withRect, RejectNonFinite},
		{"score", infScore, RejectNonFinite},
		{"yaw", nanYaw, RejectNonFinite},
		{"width", zeroWidth, RejectNonPositiveExtent},
		{"height", negativeHeight, RejectNonPositiveExtent},
		{"length", both, RejectNonFinite},
	}
	for _, c := range cases {
		reason, ok := c.detection.validate()
		if ok || reason != c.reason {
			t.Errorf("Case '%s': expected %s, got %s (ok=%t)", c.name, c.reason, reason, ok)
		}
	}
}

func TestRejectReasonString(t *testing.T) {
	expected := map[RejectReason]string{
		RejectNonFinite:         "non_finite",
		RejectNonPositiveExtent: "non_positive_extent",
		RejectUnknownCategory:   "unknown_category",
		RejectLowScore:          "low_score",
		RejectReason(0):         "unknown",
	}
	for reason, name := range expected {
		if reason.String() != name {
			t.Errorf("Expected '%s', got '%s'", name, reason.String())
		}
	}
}

func TestScoreNormalization(t *testing.T) {
	sigmoid := ScoreNormalizationSigmoid
	if math.Abs(sigmoid.Apply(0)-0.5) > eps {
		t.Errorf("Expected 0.5, got %f", sigmoid.Apply(0))
	}
	if math.Abs(sigmoid.Apply(-2)-0.11920292) > eps {
		t.Errorf("Expected 0.11920292, got %f", sigmoid.Apply(-2))
	}
	if score := sigmoid.Apply(1e6); score != 1.0 {
		t.Errorf("Expected huge logit to become 1, got %f", score)
	}
	if score := sigmoid.Apply(-1e6); score <= 0 || score > eps {
		t.Errorf("Expected tiny positive score, got %g", score)
	}
	if score := sigmoid.Apply(math.Inf(1)); !math.IsInf(score, 1) {
		t.Errorf("Expected non-finite score to stay as is, got %f", score)
	}
	if score := ScoreNormalizationNone.Apply(3.5); score != 3.5 {
		t.Errorf("Expected 3.5, got %f", score)
	}
}

func TestScoreNormalizationText(t *testing.T) {
	var normalization ScoreNormalization
	if err := normalization.UnmarshalText([]byte(" Sigmoid ")); err != nil || normalization != ScoreNormalizationSigmoid {
		t.Errorf("Expected sigmoid, got %s (%v)", normalization, err)
	}
	if err := normalization.UnmarshalText([]byte("")); err != nil || normalization != ScoreNormalizationNone {
		t.Errorf("Expected none for empty text, got %s (%v)", normalization, err)
	}
	if err := normalization.UnmarshalText([]byte("softmax")); err == nil {
		t.Errorf("Expected error for unknown normalization")
	}
	text, err := ScoreNormalizationSigmoid.MarshalText()
	if err != nil || string(text) != "sigmoid" {
		t.Errorf("Expected 'sigmoid', got '%s' (%v)", text, err)
	}
	if _, err := ScoreNormalization(7).MarshalText(); err == nil {
		t.Errorf("Expected error for unknown normalization")
	}
}
