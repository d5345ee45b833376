package game

import "math"

type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vector) Scale(k float64) Vector {
	return Vector{X: v.X * k, Y: v.Y * k}
}

func (v Vector) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns the unit vector in the direction of v, or the zero vector.
func (v Vector) Normalize() Vector {
	l := v.Length()
	if l == 0 {
		return Vector{}
	}
	return Vector{X: v.X / l, Y: v.Y / l}
}

// Rect is an axis-aligned box anchored at its top-left corner.
type Rect struct {
	Position Vector
	Size     Vector
}

func (r Rect) Intersects(o Rect) bool {
	return r.Position.X < o.Position.X+o.Size.X &&
		o.Position.X < r.Position.X+r.Size.X &&
		r.Position.Y < o.Position.Y+o.Size.Y &&
		o.Position.Y < r.Position.Y+r.Size.Y
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
