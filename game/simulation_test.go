package game_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Dosada05/pong-arena/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulation_InitialLayout(t *testing.T) {
	s := game.DefaultSettings()
	sim := game.NewSimulation(s)

	pos := sim.Positions()
	assert.Equal(t, game.Positions{20, 250, 770, 250, 394, 294}, pos)
	assert.InDelta(t, 1.0, sim.Ball().Direction.Length(), 1e-9)
}

func TestSimulation_PaddleMovesPerTickUntilClamped(t *testing.T) {
	s := game.DefaultSettings()
	sim := game.NewSimulation(s)
	sim.SetDirection(game.SlotLeft, 1)

	sim.Advance()
	assert.Equal(t, 258.0, sim.Paddle(game.SlotLeft).Position.Y)
	sim.Advance()
	assert.Equal(t, 266.0, sim.Paddle(game.SlotLeft).Position.Y)

	for i := 0; i < 40; i++ {
		sim.Advance()
	}
	assert.Equal(t, s.WorldHeight-s.PaddleHeight, sim.Paddle(game.SlotLeft).Position.Y)
	assert.Equal(t, 250.0, sim.Paddle(game.SlotRight).Position.Y, "right paddle has no direction")

	sim.SetDirection(game.SlotLeft, -1)
	for i := 0; i < 100; i++ {
		sim.Advance()
	}
	assert.Equal(t, 0.0, sim.Paddle(game.SlotLeft).Position.Y)
}

func TestSimulation_SetDirectionIgnoresInvalidInput(t *testing.T) {
	sim := game.NewSimulation(game.DefaultSettings())

	sim.SetDirection(2, 1)
	sim.SetDirection(-1, 1)
	sim.SetDirection(game.SlotRight, 5)
	assert.Equal(t, 0, sim.Paddle(game.SlotLeft).Direction)
	assert.Equal(t, 0, sim.Paddle(game.SlotRight).Direction)
	assert.Nil(t, sim.Paddle(3))
}

func TestSimulation_WallBounce(t *testing.T) {
	sim := game.NewSimulation(game.DefaultSettings())
	ball := sim.Ball()
	ball.Position = game.Vector{X: 400, Y: 2}
	ball.Direction = game.Vector{X: 0.6, Y: -0.8}

	_, scored := sim.Advance()
	require.False(t, scored)
	assert.InDelta(t, 0.8, ball.Direction.Y, 1e-9)
	assert.InDelta(t, 6.8, ball.Position.Y, 1e-9)
	assert.InDelta(t, 403.6, ball.Position.X, 1e-9)
}

func TestSimulation_PaddleBounceHonoursCooldown(t *testing.T) {
	s := game.DefaultSettings()
	sim := game.NewSimulation(s)
	ball := sim.Ball()
	ball.Position = game.Vector{X: 32, Y: 280}
	ball.Direction = game.Vector{X: -1, Y: 0}

	_, scored := sim.Advance()
	require.False(t, scored)
	assert.Equal(t, 1.0, ball.Direction.X)
	assert.Equal(t, s.TickRate/2, ball.Cooldown)
	assert.Equal(t, 38.0, ball.Position.X)

	// Pushed back into the paddle while cooling down: no second bounce.
	ball.Position = game.Vector{X: 32, Y: 280}
	ball.Direction = game.Vector{X: -1, Y: 0}
	sim.Advance()
	assert.Equal(t, -1.0, ball.Direction.X)
	assert.Equal(t, s.TickRate/2-1, ball.Cooldown)
}

func TestSimulation_Goals(t *testing.T) {
	tests := []struct {
		name       string
		position   game.Vector
		direction  game.Vector
		wantScorer int
	}{
		{name: "ball past left edge scores for right", position: game.Vector{X: -1, Y: 300}, direction: game.Vector{X: -1}, wantScorer: game.SlotRight},
		{name: "ball past right edge scores for left", position: game.Vector{X: 790, Y: 100}, direction: game.Vector{X: 1}, wantScorer: game.SlotLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := game.NewSimulation(game.DefaultSettings())
			ball := sim.Ball()
			ball.Position = tt.position
			ball.Direction = tt.direction

			scorer, scored := sim.Advance()
			require.True(t, scored)
			assert.Equal(t, tt.wantScorer, scorer)
			assert.Equal(t, game.Vector{X: 394, Y: 294}, ball.Position)
			assert.InDelta(t, -math.Sqrt2/2, ball.Direction.X, 1e-9)
			assert.InDelta(t, math.Sqrt2/2, ball.Direction.Y, 1e-9)
		})
	}
}

func TestPositions_MarshalBinary(t *testing.T) {
	p := game.Positions{1.5, 2, 3, 4, 5, 6.25}

	data, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, game.FrameSize)
	assert.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, math.Float32bits(6.25), binary.LittleEndian.Uint32(data[20:24]))

	var decoded game.Positions
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, p, decoded)
	assert.Error(t, decoded.UnmarshalBinary(data[:10]))
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *game.Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(s *game.Settings) {}},
		{name: "zero tick rate", mutate: func(s *game.Settings) { s.TickRate = 0 }, wantErr: true},
		{name: "paddle taller than world", mutate: func(s *game.Settings) { s.PaddleHeight = 700 }, wantErr: true},
		{name: "vertical ball", mutate: func(s *game.Settings) { s.BallDirection = game.Vector{Y: 1} }, wantErr: true},
		{name: "stationary ball", mutate: func(s *game.Settings) { s.BallSpeed = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := game.DefaultSettings()
			tt.mutate(&s)
			if tt.wantErr {
				assert.Error(t, s.Validate())
			} else {
				assert.NoError(t, s.Validate())
			}
		})
	}
}
