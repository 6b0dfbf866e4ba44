// Package natsrelay is a halyard.Relay over NATS. Every registry bound to
// the same subject prefix receives every relayed message and delivers it if
// it holds the target connection.
package natsrelay

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/RobertWHurst/halyard"
	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used when none is given.
const DefaultPrefix = "halyard"

type Relay struct {
	NatsConnection *nats.Conn
	prefix         string

	mu            sync.Mutex
	subscriptions map[string]*nats.Subscription
}

var _ halyard.Relay = &Relay{}

// New creates a relay on conn. An empty prefix selects DefaultPrefix.
func New(conn *nats.Conn, prefix string) *Relay {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Relay{
		NatsConnection: conn,
		prefix:         prefix,
		subscriptions:  map[string]*nats.Subscription{},
	}
}

type DispatchMessage struct {
	ConnectionID string `json:"connectionId"`
	Text         string `json:"text"`
}

// Subject returns the subject relayed messages are published on.
func (r *Relay) Subject() string {
	return namespace(r.prefix, "dispatch")
}

func (r *Relay) Dispatch(connectionID string, text string) error {
	messageBytes, err := json.Marshal(&DispatchMessage{
		ConnectionID: connectionID,
		Text:         text,
	})
	if err != nil {
		return err
	}
	return r.NatsConnection.Publish(r.Subject(), messageBytes)
}

func (r *Relay) BindDispatch(registryID string, handler func(connectionID string, text string)) error {
	sub, err := r.NatsConnection.Subscribe(r.Subject(), func(msg *nats.Msg) {
		dispatchMessage := &DispatchMessage{}
		if err := json.Unmarshal(msg.Data, dispatchMessage); err != nil {
			return
		}
		handler(dispatchMessage.ConnectionID, dispatchMessage.Text)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	previous := r.subscriptions[registryID]
	r.subscriptions[registryID] = sub
	r.mu.Unlock()

	if previous != nil {
		return previous.Unsubscribe()
	}
	return nil
}

func (r *Relay) UnbindDispatch(registryID string) error {
	r.mu.Lock()
	sub, ok := r.subscriptions[registryID]
	delete(r.subscriptions, registryID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func namespace(parts ...string) string {
	return strings.Join(parts, ".")
}
