package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/netshell/internal/runtime/bridge"
	configpkg "github.com/drblury/netshell/internal/runtime/config"
	idspkg "github.com/drblury/netshell/internal/runtime/ids"
	"github.com/drblury/netshell/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
	"github.com/drblury/netshell/transport"
)

// Metadata keys set on every bridged message.
const (
	MetadataEventKind = "event_kind"
	MetadataClientID  = "client_id"
)

// LifecycleEvent is the payload published for every bridged event.
type LifecycleEvent struct {
	Kind     string    `json:"kind"`
	ClientID int       `json:"client_id,omitempty"`
	Size     int       `json:"size,omitempty"`
	At       time.Time `json:"at"`
}

// BridgeListener forwards lifecycle events to a watermill publisher. Payloads
// are not forwarded, only their size.
type BridgeListener struct {
	publisher message.Publisher
	topic     string
	now       func() time.Time
}

// NewBridgeListener returns a listener publishing to topic, or
// config.DefaultBridgeTopic when topic is empty.
func NewBridgeListener(publisher message.Publisher, topic string) *BridgeListener {
	if topic == "" {
		topic = configpkg.DefaultBridgeTopic
	}
	return &BridgeListener{publisher: publisher, topic: topic, now: time.Now}
}

// NewBridgeListenerFromConfig builds the publisher named by conf.BridgeSystem.
// It returns bridge.ErrBridgeDisabled when no system is configured.
func NewBridgeListenerFromConfig(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, factory bridge.Factory) (*BridgeListener, error) {
	if factory == nil {
		factory = bridge.DefaultFactory()
	}
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}
	pub, err := factory.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	return NewBridgeListener(pub, conf.BridgeTopic), nil
}

// Topic returns the topic events are published to.
func (b *BridgeListener) Topic() string { return b.topic }

// Close closes the underlying publisher.
func (b *BridgeListener) Close() error {
	return b.publisher.Close()
}

func (b *BridgeListener) publish(ev LifecycleEvent) error {
	ev.At = b.now().UTC()
	payload, err := jsoncodec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode lifecycle event: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(MetadataEventKind, ev.Kind)
	if ev.ClientID != 0 {
		msg.Metadata.Set(MetadataClientID, strconv.Itoa(ev.ClientID))
	}
	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

func (b *BridgeListener) OnStart(*Server) error {
	return b.publish(LifecycleEvent{Kind: transport.EventStart.String()})
}

func (b *BridgeListener) OnConnect(_ *Server, client *Client) error {
	return b.publish(LifecycleEvent{Kind: transport.EventConnect.String(), ClientID: client.ID()})
}

func (b *BridgeListener) OnReceive(_ *Server, client *Client, data []byte) error {
	return b.publish(LifecycleEvent{Kind: transport.EventReceive.String(), ClientID: client.ID(), Size: len(data)})
}

func (b *BridgeListener) OnClose(_ *Server, client *Client) error {
	return b.publish(LifecycleEvent{Kind: transport.EventClose.String(), ClientID: client.ID()})
}

func (b *BridgeListener) OnShutdown(*Server) error {
	return b.publish(LifecycleEvent{Kind: transport.EventShutdown.String()})
}

// IsBridgeDisabled reports whether err means no bridge system is configured.
func IsBridgeDisabled(err error) bool {
	return errors.Is(err, bridge.ErrBridgeDisabled)
}
