// Package vec holds the small amount of 2-D math shared by the wire format, the
// simulation and client-side interpolation.
package vec

import "math"

type Vec2 struct {
	X float32
	Y float32
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) Len() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// Rect is an axis-aligned box; X/Y is the center.
type Rect struct {
	X float32
	Y float32
	W float32
	H float32
}

func (r Rect) Overlaps(o Rect) bool {
	return abs32(r.X-o.X)*2 < r.W+o.W && abs32(r.Y-o.Y)*2 < r.H+o.H
}

func (r Rect) Contains(p Vec2) bool {
	return abs32(p.X-r.X)*2 <= r.W && abs32(p.Y-r.Y)*2 <= r.H
}

func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func Lerp2(a, b Vec2, t float32) Vec2 {
	return Vec2{X: Lerp(a.X, b.X, t), Y: Lerp(a.Y, b.Y, t)}
}

// NormalizeDeg maps an angle into [0, 360).
func NormalizeDeg(a float32) float32 {
	r := float32(math.Mod(float64(a), 360))
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

// LerpAngleDeg interpolates along the shorter arc between two headings and
// returns a result in [0, 360).
func LerpAngleDeg(a, b, t float32) float32 {
	diff := NormalizeDeg(b - a)
	if diff > 180 {
		diff -= 360
	}
	return NormalizeDeg(a + diff*t)
}

func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Radians(deg float32) float64 {
	return float64(deg) * math.Pi / 180.0
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
