// Package statestore defines the optional cross-process key/value and publish/subscribe
// store used when orchestration runs on more than one process.
package statestore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

type Message struct {
	Channel string
	Payload []byte
}

// Subscription delivers messages until Close is called or its context ends.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Key names shared by every process of a deployment.
const (
	EventsChannel = "pong:events"
	userKeyPrefix = "pong:user:"
)

func UserKey(userID string) string {
	return userKeyPrefix + userID
}
