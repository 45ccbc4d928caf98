// Package bridge builds the watermill publishers that lifecycle events are
// forwarded to. The system is chosen by Config.BridgeSystem.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/netshell/internal/runtime/config"
)

// Supported bridge systems.
const (
	SystemChannel  = "channel"
	SystemKafka    = "kafka"
	SystemRabbitMQ = "rabbitmq"
	SystemNATS     = "nats"
	SystemNATSCore = "nats-core"
	SystemHTTP     = "http"
	SystemAWS      = "aws"
)

var (
	ErrBridgeDisabled = errors.New("bridge: no bridge system configured")
	ErrUnknownSystem  = errors.New("bridge: unknown bridge system")
)

// Systems lists every supported bridge system.
func Systems() []string {
	return []string{SystemChannel, SystemKafka, SystemRabbitMQ, SystemNATS, SystemNATSCore, SystemHTTP, SystemAWS}
}

// Factory abstracts how publishers are created so callers can swap it in tests.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error)
}

// DefaultFactory returns the built-in factory dispatching on Config.BridgeSystem.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return Build(ctx, conf, logger)
}

// Build creates the publisher configured by conf.BridgeSystem.
func Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	switch conf.BridgeSystem {
	case "":
		return nil, ErrBridgeDisabled
	case SystemChannel:
		return channelPublisher(conf, logger)
	case SystemKafka:
		return kafkaPublisher(conf, logger)
	case SystemRabbitMQ:
		return rabbitPublisher(conf, logger)
	case SystemNATS:
		return natsPublisher(conf, logger)
	case SystemNATSCore:
		return natsCorePublisher(conf, logger)
	case SystemHTTP:
		return httpPublisher(conf, logger)
	case SystemAWS:
		return awsPublisher(ctx, conf, logger)
	}
	return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownSystem, conf.BridgeSystem, Systems())
}
