package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore is a Redis-backed Store used when multiple nodes share session
// locks and event channels.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new RedisStore instance.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Set stores a key-value pair.
func (s *RedisStore) Set(key string, value []byte, ttl time.Duration) error {
	return s.client.Set(context.Background(), key, value, ttl).Err()
}

// Get retrieves a value by its key.
func (s *RedisStore) Get(key string) ([]byte, error) {
	val, err := s.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

// Delete removes a value by its key.
func (s *RedisStore) Delete(key string) error {
	return s.client.Del(context.Background(), key).Err()
}

// Del removes multiple values by their keys.
func (s *RedisStore) Del(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(context.Background(), keys...).Err()
}

// Exists checks if a key exists.
func (s *RedisStore) Exists(key string) (bool, error) {
	n, err := s.client.Exists(context.Background(), key).Result()
	return n > 0, err
}

// SetNX sets a key-value pair if the key does not already exist.
func (s *RedisStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(context.Background(), key, value, ttl).Result()
}

// Publish sends a message to all subscribers of a channel.
func (s *RedisStore) Publish(channel string, message []byte) error {
	return s.client.Publish(context.Background(), channel, message).Err()
}

// redisSubscription adapts redis.PubSub to the Subscription interface.
type redisSubscription struct {
	pubsub    *redis.PubSub
	msgChan   chan *Message
	closeOnce sync.Once
	done      chan struct{}
}

// Channel returns the message channel for the subscription.
func (rs *redisSubscription) Channel() <-chan *Message {
	return rs.msgChan
}

// Close terminates the subscription. Idempotent.
func (rs *redisSubscription) Close() error {
	var err error
	rs.closeOnce.Do(func() {
		close(rs.done)
		err = rs.pubsub.Close()
	})
	return err
}

// Subscribe listens for messages on a given channel.
func (s *RedisStore) Subscribe(channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(context.Background(), channel)

	// Confirm the subscription before handing it out.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		msgChan: make(chan *Message, 10),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sub.msgChan)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.msgChan <- &Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-sub.done:
					return
				}
			case <-sub.done:
				return
			}
		}
	}()

	return sub, nil
}

// Clear flushes the current Redis database. Only the master node calls this
// at startup.
func (s *RedisStore) Clear() error {
	logrus.Debug("Clearing Redis store")
	return s.client.FlushDB(context.Background()).Err()
}
