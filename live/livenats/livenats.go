// Package livenats provides an embedded NATS server with JetStream as a
// pub/sub backend for live servers.
package livenats

import (
	"context"
	"fmt"

	"github.com/delaneyj/toolbelt/embeddednats"
	"github.com/nats-io/nats.go"

	"github.com/ryanhamamura/tally/live"
)

// NATS implements live.PubSub using an embedded NATS server with JetStream.
type NATS struct {
	server *embeddednats.Server
	nc     *nats.Conn
	js     nats.JetStreamContext
}

var _ live.PubSub = (*NATS)(nil)

// New starts an embedded NATS server with JetStream enabled and returns a
// ready-to-use NATS instance. The server stores data in dataDir and shuts
// down when ctx is cancelled.
func New(ctx context.Context, dataDir string) (*NATS, error) {
	ns, err := embeddednats.New(ctx, embeddednats.WithDirectory(dataDir))
	if err != nil {
		return nil, fmt.Errorf("livenats: start server: %w", err)
	}
	ns.WaitForServer()

	nc, err := ns.Client()
	if err != nil {
		ns.Close()
		return nil, fmt.Errorf("livenats: connect client: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		ns.Close()
		return nil, fmt.Errorf("livenats: init jetstream: %w", err)
	}

	return &NATS{server: ns, nc: nc, js: js}, nil
}

// Publish sends data to the given subject using core NATS publish.
func (n *NATS) Publish(subject string, data []byte) error {
	return n.nc.Publish(subject, data)
}

// Subscribe creates a core NATS subscription for real-time fan-out delivery.
func (n *NATS) Subscribe(subject string, handler func(data []byte)) (live.Subscription, error) {
	sub, err := n.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("livenats: subscribe %q: %w", subject, err)
	}
	return sub, nil
}

// EnsureStream creates a JetStream stream capturing subjects when it does not
// exist yet, so published messages can be replayed later.
func (n *NATS) EnsureStream(name string, subjects ...string) error {
	if _, err := n.js.StreamInfo(name); err == nil {
		return nil
	}
	if _, err := n.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		MaxMsgs:  10_000,
	}); err != nil {
		return fmt.Errorf("livenats: add stream %q: %w", name, err)
	}
	return nil
}

// Close shuts down the client connection and embedded server.
func (n *NATS) Close() error {
	n.nc.Close()
	return n.server.Close()
}

// Conn returns the underlying NATS connection.
func (n *NATS) Conn() *nats.Conn {
	return n.nc
}
