package game

import (
	"errors"
	"fmt"
)

// Settings describes the playing field. Paddle and ball speeds are distances per tick.
type Settings struct {
	TickRate      int
	WorldWidth    float64
	WorldHeight   float64
	PaddleWidth   float64
	PaddleHeight  float64
	PaddleSpeed   float64
	PaddleOffset  float64
	BallSize      float64
	BallSpeed     float64
	BallDirection Vector
}

func DefaultSettings() Settings {
	return Settings{
		TickRate:      60,
		WorldWidth:    800,
		WorldHeight:   600,
		PaddleWidth:   10,
		PaddleHeight:  100,
		PaddleSpeed:   8,
		PaddleOffset:  20,
		BallSize:      12,
		BallSpeed:     6,
		BallDirection: Vector{X: -1, Y: 1},
	}
}

func (s Settings) Validate() error {
	switch {
	case s.TickRate <= 0:
		return fmt.Errorf("tick rate must be positive, got %d", s.TickRate)
	case s.WorldWidth <= 0 || s.WorldHeight <= 0:
		return fmt.Errorf("world size must be positive, got %vx%v", s.WorldWidth, s.WorldHeight)
	case s.PaddleWidth <= 0 || s.PaddleHeight <= 0 || s.PaddleHeight > s.WorldHeight:
		return fmt.Errorf("invalid paddle size %vx%v", s.PaddleWidth, s.PaddleHeight)
	case s.PaddleOffset < 0 || 2*(s.PaddleOffset+s.PaddleWidth) >= s.WorldWidth:
		return fmt.Errorf("paddle offset %v does not fit the world", s.PaddleOffset)
	case s.BallSize <= 0 || s.BallSize >= s.WorldHeight:
		return fmt.Errorf("invalid ball size %v", s.BallSize)
	case s.PaddleSpeed < 0 || s.BallSpeed <= 0:
		return errors.New("paddle speed must not be negative and ball speed must be positive")
	case s.BallDirection.X == 0:
		return errors.New("ball direction needs a horizontal component")
	}
	return nil
}
