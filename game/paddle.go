package game

type Paddle struct {
	Position  Vector
	Size      Vector
	Speed     float64
	Direction int

	maxY float64
}

func NewPaddle(position, size Vector, speed, worldHeight float64) *Paddle {
	return &Paddle{
		Position: position,
		Size:     size,
		Speed:    speed,
		maxY:     worldHeight - size.Y,
	}
}

// SetDirection accepts -1, 0 or 1 and reports whether dir was valid.
func (p *Paddle) SetDirection(dir int) bool {
	if dir < -1 || dir > 1 {
		return false
	}
	p.Direction = dir
	return true
}

// Update moves the paddle one tick along its direction, clamped to the world.
func (p *Paddle) Update() {
	p.Position.Y = clamp(p.Position.Y+p.Speed*float64(p.Direction), 0, p.maxY)
}

func (p *Paddle) Bounds() Rect {
	return Rect{Position: p.Position, Size: p.Size}
}
