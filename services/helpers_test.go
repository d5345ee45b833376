package services_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/game"
	"github.com/Dosada05/pong-arena/models"
)

type sentFrame struct {
	room       string
	msgType    models.MessageType
	payload    []byte
	binary     bool
	disconnect bool
}

// recordingMessenger keeps every frame per user in send order.
type recordingMessenger struct {
	mu     sync.Mutex
	frames map[models.UserID][]sentFrame
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{frames: make(map[models.UserID][]sentFrame)}
}

func (r *recordingMessenger) SendJSON(room string, userID models.UserID, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var head struct {
		Type models.MessageType `json:"type"`
	}
	_ = json.Unmarshal(payload, &head)
	r.add(userID, sentFrame{room: room, msgType: head.Type, payload: payload})
}

func (r *recordingMessenger) SendBinary(room string, userID models.UserID, data []byte) {
	r.add(userID, sentFrame{room: room, payload: append([]byte(nil), data...), binary: true})
}

func (r *recordingMessenger) Disconnect(room string, userID models.UserID) {
	r.add(userID, sentFrame{room: room, disconnect: true})
}

func (r *recordingMessenger) add(userID models.UserID, f sentFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[userID] = append(r.frames[userID], f)
}

func (r *recordingMessenger) all(userID models.UserID) []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentFrame(nil), r.frames[userID]...)
}

// jsonOf returns the payloads of the JSON frames of the given type sent to userID.
func (r *recordingMessenger) jsonOf(userID models.UserID, typ models.MessageType) [][]byte {
	var out [][]byte
	for _, f := range r.all(userID) {
		if !f.binary && !f.disconnect && f.msgType == typ {
			out = append(out, f.payload)
		}
	}
	return out
}

func (r *recordingMessenger) types(userID models.UserID) []models.MessageType {
	var out []models.MessageType
	for _, f := range r.all(userID) {
		if !f.binary && !f.disconnect {
			out = append(out, f.msgType)
		}
	}
	return out
}

func (r *recordingMessenger) disconnected(userID models.UserID) bool {
	for _, f := range r.all(userID) {
		if f.disconnect {
			return true
		}
	}
	return false
}

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(payload, &v))
	return v
}

func testMatchConfig() config.MatchConfig {
	return config.MatchConfig{
		TickRate:         200,
		ScoreLimit:       3,
		ConnectTimeout:   2 * time.Second,
		ReconnectTimeout: 2 * time.Second,
		StartTimer:       0,
		MaxReconnections: 3,
	}
}

func testGameSettings() game.Settings {
	return game.DefaultSettings()
}

const (
	waitFor   = 2 * time.Second
	pollEvery = 5 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
