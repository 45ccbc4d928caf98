package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/netshell/internal/runtime/config"
)

// HeaderMessageUUID carries the watermill message UUID on core NATS messages.
const HeaderMessageUUID = "Netshell-Message-Uuid"

// NATSConn is the part of *nats.Conn used by the core publisher.
type NATSConn interface {
	PublishMsg(m *nats.Msg) error
	Flush() error
	Close()
}

// NATSConnectFactory opens the core NATS connection.
var NATSConnectFactory = func(url string) (NATSConn, error) {
	return nats.Connect(url, nats.Name("netshell-bridge"))
}

var errPublisherClosed = errors.New("bridge: publisher is closed")

// corePublisher publishes fire-and-forget messages on plain NATS subjects,
// without the JetStream layer the watermill NATS publisher expects.
type corePublisher struct {
	conn   NATSConn
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

func natsCorePublisher(conf *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	conn, err := NATSConnectFactory(conf.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &corePublisher{conn: conn, logger: logger}, nil
}

func (p *corePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPublisherClosed
	}

	for _, msg := range messages {
		header := nats.Header{}
		for k, v := range msg.Metadata {
			header.Set(k, v)
		}
		header.Set(HeaderMessageUUID, msg.UUID)

		if err := p.conn.PublishMsg(&nats.Msg{Subject: topic, Data: msg.Payload, Header: header}); err != nil {
			return fmt.Errorf("failed to publish to NATS: %w", err)
		}
		p.logger.Trace("Published lifecycle event", watermill.LogFields{"subject": topic, "uuid": msg.UUID})
	}
	return nil
}

func (p *corePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.conn.Flush()
	p.conn.Close()
	return err
}
