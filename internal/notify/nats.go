package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns for chat fan-out.
const (
	SubjectWaiting       = "support.chat.waiting"
	SubjectMessagePrefix = "support.chat.msg." // + <session_id>
	subjectMessageAll    = "support.chat.msg.>"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "support-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NATSBroker publishes and subscribes chat events over NATS. It satisfies
// Publisher.
type NATSBroker struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSBroker connects to NATS with the given config and returns a ready
// broker. It returns an error if the initial connection fails.
func NewNATSBroker(config NATSConfig) (*NATSBroker, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[notify] nats disconnected: %v", err)
			} else {
				log.Printf("[notify] nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[notify] nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[notify] nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect: %w", err)
	}

	log.Printf("[notify] connected to %s", nc.ConnectedUrl())
	return &NATSBroker{conn: nc}, nil
}

// WaitingSession publishes a waiting-session event. Best-effort.
func (b *NATSBroker) WaitingSession(sessionID string) {
	b.publish(SubjectWaiting, NewWaitingSession(sessionID))
}

// Message publishes a new-message event on the session's subject.
func (b *NATSBroker) Message(sessionID string, messageID int64) {
	b.publish(SubjectMessagePrefix+sessionID, NewMessage(sessionID, messageID))
}

func (b *NATSBroker) publish(subject string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[notify] marshal event: %v", err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		log.Printf("[notify] publish %s: %v", subject, err)
	}
}

// SubscribeEvents registers a handler for all chat events: every
// waiting-session event and every new-message event regardless of session.
// Used by the push endpoint to feed connected agents. Returns an
// unsubscribe func.
func (b *NATSBroker) SubscribeEvents(handler func(Event)) (func(), error) {
	var subs []*nats.Subscription
	for _, subject := range []string{SubjectWaiting, subjectMessageAll} {
		sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
			var event Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				log.Printf("[notify] unmarshal event on %s: %v", msg.Subject, err)
				return
			}
			handler(event)
		})
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return nil, fmt.Errorf("notify: subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	b.mu.Lock()
	b.subs = append(b.subs, subs...)
	b.mu.Unlock()

	return func() {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				log.Printf("[notify] unsubscribe: %v", err)
			}
		}
	}, nil
}

// SubscribeSession registers a handler for one session's new-message
// events. Returns an unsubscribe func.
func (b *NATSBroker) SubscribeSession(sessionID string, handler func(Event)) (func(), error) {
	subject := SubjectMessagePrefix + sessionID
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[notify] unmarshal event on %s: %v", msg.Subject, err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: subscribe %s: %w", subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[notify] unsubscribe %s: %v", subject, err)
		}
	}, nil
}

// Close drains subscriptions and closes the connection.
func (b *NATSBroker) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()
	b.conn.Close()
}
