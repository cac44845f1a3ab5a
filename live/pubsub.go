package live

import (
	"errors"

	json "github.com/goccy/go-json"
)

// ErrNoPubSub is returned by Publish and Subscribe when the server has no
// PubSub configured.
var ErrNoPubSub = errors.New("live: pubsub not configured")

// PubSub is an interface for publish/subscribe messaging backends.
// The livenats sub-package provides an embedded NATS implementation.
type PubSub interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	Close() error
}

// Subscription represents an active subscription that can be manually unsubscribed.
type Subscription interface {
	Unsubscribe() error
}

// Publish JSON-marshals msg and publishes to subject.
func Publish[T any](c *Context, subject string, msg T) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Publish(subject, data)
}

// Subscribe JSON-unmarshals each message as T and calls handler. Messages
// that do not decode are dropped.
func Subscribe[T any](c *Context, subject string, handler func(T)) (Subscription, error) {
	return c.Subscribe(subject, func(data []byte) {
		var msg T
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		handler(msg)
	})
}
