package bridge

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/netshell/internal/runtime/config"
)

var NATSPublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

func natsPublisher(conf *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NATSPublisherFactory(
		nats.PublisherConfig{
			URL:       conf.NATSURL,
			Marshaler: &nats.NATSMarshaler{},
		},
		logger,
	)
}
