package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/f1replay-service-go/log"
)

const defaultSubjectPrefix = "frs"

type (
	NatsOption    func(*NatsPublisher)
	NatsPublisher struct {
		conn   *nats.Conn
		prefix string
		owned  bool
		l      *log.Logger
	}
)

func WithSubjectPrefix(prefix string) NatsOption {
	return func(n *NatsPublisher) {
		n.prefix = prefix
	}
}

// NewNats publishes on an existing connection. The connection is not closed
// by Close.
func NewNats(conn *nats.Conn, opts ...NatsOption) *NatsPublisher {
	ret := &NatsPublisher{
		conn:   conn,
		prefix: defaultSubjectPrefix,
		l:      log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// ConnectNats connects to url and publishes on that connection
func ConnectNats(url string, opts ...NatsOption) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("f1replay-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Default().Named("nats").Warn("disconnected", log.ErrorField(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	ret := NewNats(conn, opts...)
	ret.owned = true
	return ret, nil
}

// Subject returns the subject used for events of a session
func (n *NatsPublisher) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s.%s", n.prefix, ev.Type, ev.SessionID)
}

func (n *NatsPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subject := n.Subject(ev)
	n.l.Debug("publish", log.String("subject", subject))
	return n.conn.Publish(subject, data)
}

func (n *NatsPublisher) Close() error {
	if !n.owned {
		return nil
	}
	return n.conn.Drain()
}
