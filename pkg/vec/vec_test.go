package vec

import (
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestLerpAngleTakesShortestArc(t *testing.T) {
	cases := []struct {
		a, b, t, want float32
	}{
		{0, 350, 0.5, 355},
		{350, 10, 0.5, 0},
		{10, 350, 0.25, 5},
		{90, 180, 0.5, 135},
		{0, 180, 1, 180},
		{270, 90, 0, 270},
	}
	for _, c := range cases {
		if got := LerpAngleDeg(c.a, c.b, c.t); !near(got, c.want) {
			t.Errorf("LerpAngleDeg(%v, %v, %v) = %v, want %v", c.a, c.b, c.t, got, c.want)
		}
	}
}

func TestNormalizeDeg(t *testing.T) {
	for in, want := range map[float32]float32{
		-90: 270,
		360: 0,
		725: 5,
		0:   0,
	} {
		if got := NormalizeDeg(in); !near(got, want) {
			t.Errorf("NormalizeDeg(%v) = %v", in, got)
		}
	}
	if got := NormalizeDeg(-1e-9); got < 0 || got >= 360 {
		t.Errorf("tiny negative angle escaped the range: %v", got)
	}
}

func TestRect(t *testing.T) {
	zone := Rect{X: 0, Y: 0, W: 10, H: 10}
	if !zone.Overlaps(Rect{X: 9, Y: 0, W: 10, H: 10}) {
		t.Error("overlapping boxes")
	}
	if zone.Overlaps(Rect{X: 10, Y: 0, W: 10, H: 10}) {
		t.Error("touching edges do not overlap")
	}
	if !zone.Contains(Vec2{X: 5, Y: -5}) || zone.Contains(Vec2{X: 5.1, Y: 0}) {
		t.Error("Contains is wrong at the boundary")
	}
}

func TestLerp2(t *testing.T) {
	got := Lerp2(Vec2{X: 0, Y: 10}, Vec2{X: 10, Y: 0}, 0.25)
	if !near(got.X, 2.5) || !near(got.Y, 7.5) {
		t.Fatalf("Lerp2 = %+v", got)
	}
}
