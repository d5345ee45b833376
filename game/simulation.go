package game

const (
	SlotLeft  = 0
	SlotRight = 1
)

// Simulation owns one paddle pair and a ball and advances them one fixed tick at a time.
// It is not safe for concurrent use.
type Simulation struct {
	settings Settings
	paddles  [2]*Paddle
	ball     *Ball
}

func NewSimulation(s Settings) *Simulation {
	paddleSize := Vector{X: s.PaddleWidth, Y: s.PaddleHeight}
	paddleY := (s.WorldHeight - s.PaddleHeight) / 2
	left := NewPaddle(Vector{X: s.PaddleOffset, Y: paddleY}, paddleSize, s.PaddleSpeed, s.WorldHeight)
	right := NewPaddle(Vector{X: s.WorldWidth - s.PaddleOffset - s.PaddleWidth, Y: paddleY}, paddleSize, s.PaddleSpeed, s.WorldHeight)

	start := Vector{X: (s.WorldWidth - s.BallSize) / 2, Y: (s.WorldHeight - s.BallSize) / 2}
	return &Simulation{
		settings: s,
		paddles:  [2]*Paddle{left, right},
		ball:     NewBall(start, s.BallDirection, s.BallSpeed, s.BallSize),
	}
}

// SetDirection is a no-op for an invalid slot or direction.
func (s *Simulation) SetDirection(slot, dir int) {
	if slot != SlotLeft && slot != SlotRight {
		return
	}
	s.paddles[slot].SetDirection(dir)
}

// Advance moves the paddles and the ball by one tick. When the ball leaves the field
// horizontally it reports the scoring slot and the ball is reset instead of moved.
func (s *Simulation) Advance() (scorer int, scored bool) {
	for _, p := range s.paddles {
		p.Update()
	}

	b := s.ball
	if b.Cooldown > 0 {
		b.Cooldown--
	}

	next := b.next()
	if (next.Y < 0 && b.Direction.Y < 0) || (next.Y+b.Size > s.settings.WorldHeight && b.Direction.Y > 0) {
		b.Direction.Y = -b.Direction.Y
		next = b.next()
	}

	if b.Cooldown == 0 {
		box := Rect{Position: next, Size: Vector{X: b.Size, Y: b.Size}}
		for _, p := range s.paddles {
			if box.Intersects(p.Bounds()) {
				b.Direction.X = -b.Direction.X
				b.Cooldown = s.settings.TickRate / 2
				next = b.next()
				break
			}
		}
	}

	switch {
	case next.X < 0:
		b.Reset()
		return SlotRight, true
	case next.X+b.Size > s.settings.WorldWidth:
		b.Reset()
		return SlotLeft, true
	}

	b.Position = next
	return 0, false
}

func (s *Simulation) Positions() Positions {
	l, r := s.paddles[SlotLeft].Position, s.paddles[SlotRight].Position
	return Positions{l.X, l.Y, r.X, r.Y, s.ball.Position.X, s.ball.Position.Y}
}

func (s *Simulation) Paddle(slot int) *Paddle {
	if slot != SlotLeft && slot != SlotRight {
		return nil
	}
	return s.paddles[slot]
}

func (s *Simulation) Ball() *Ball {
	return s.ball
}

func (s *Simulation) Settings() Settings {
	return s.settings
}
