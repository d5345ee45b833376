package game

type Ball struct {
	Position  Vector
	Direction Vector
	Speed     float64
	Size      float64
	// Cooldown counts the ticks left before another paddle bounce may trigger.
	Cooldown int

	start    Vector
	startDir Vector
}

func NewBall(start, direction Vector, speed, size float64) *Ball {
	dir := direction.Normalize()
	return &Ball{
		Position:  start,
		Direction: dir,
		Speed:     speed,
		Size:      size,
		start:     start,
		startDir:  dir,
	}
}

// Reset puts the ball back at its start position with its original direction.
func (b *Ball) Reset() {
	b.Position = b.start
	b.Direction = b.startDir
	b.Cooldown = 0
}

func (b *Ball) Bounds() Rect {
	return Rect{Position: b.Position, Size: Vector{X: b.Size, Y: b.Size}}
}

func (b *Ball) next() Vector {
	return b.Position.Add(b.Direction.Scale(b.Speed))
}
