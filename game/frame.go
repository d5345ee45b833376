package game

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FrameSize is the length of an encoded position frame: six little-endian float32 values.
const FrameSize = 24

// Positions is paddleLeft.x, paddleLeft.y, paddleRight.x, paddleRight.y, ball.x, ball.y.
type Positions [6]float64

func (p Positions) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FrameSize)
	for i, v := range p {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf, nil
}

func (p *Positions) UnmarshalBinary(data []byte) error {
	if len(data) != FrameSize {
		return fmt.Errorf("position frame must be %d bytes, got %d", FrameSize, len(data))
	}
	for i := range p {
		p[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return nil
}
