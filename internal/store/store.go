// Package store provides a pluggable key-value and pub/sub abstraction used
// for per-user check-in locks, settings invalidation, and attendance event
// fan-out. A Redis-backed implementation coordinates multiple nodes; the
// in-memory implementation serves single-node deployments and tests.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Message represents a message received from a subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription represents an active subscription to a channel.
type Subscription interface {
	// Channel returns the channel on which messages are delivered.
	Channel() <-chan *Message
	// Close terminates the subscription.
	Close() error
}

// Store is the coordination interface shared by all implementations.
type Store interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Del(keys ...string) error
	Exists(key string) (bool, error)
	// SetNX sets key only when absent; it is the basis of the per-user
	// session lock.
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)

	Publish(channel string, message []byte) error
	Subscribe(channel string) (Subscription, error)

	Clear() error
	Close() error
}
