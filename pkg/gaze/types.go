// Package gaze converts raw pupil positions into normalized, deadzone-filtered
// direction vectors relative to a calibrated baseline.
package gaze

import "math"

// Point is a pupil position in frame pixels
type Point struct {
	X, Y float64
}

// NotFound is the sentinel a vision backend returns when no pupil was located.
var NotFound = Point{X: -1, Y: -1}

// Found returns false for the NotFound sentinel or any negative coordinate.
func (p Point) Found() bool {
	return p.X >= 0 && p.Y >= 0
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Size is a frame size in pixels
type Size struct {
	Width, Height int
}

// Empty returns true if either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Center returns the frame center point.
func (s Size) Center() Point {
	return Point{X: float64(s.Width) / 2, Y: float64(s.Height) / 2}
}

// Vector is a normalized pupil displacement, roughly [-1, 1] per axis.
// +X is right and +Y is down, matching image coordinates.
type Vector struct {
	X, Y float64
}

// Magnitude returns the Euclidean length of the vector.
func (v Vector) Magnitude() float64 {
	return math.Hypot(v.X, v.Y)
}

// IsZero returns true for the "no intentional movement" vector.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Scale returns v multiplied by k.
func (v Vector) Scale(k float64) Vector {
	return Vector{X: v.X * k, Y: v.Y * k}
}
