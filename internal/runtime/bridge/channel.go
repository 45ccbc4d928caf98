package bridge

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/netshell/internal/runtime/config"
)

// GoChannelFactory creates the in-process pub/sub. The subscriber half lets an
// embedding application consume lifecycle events without a broker.
var GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func channelPublisher(_ *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return GoChannelFactory(gochannel.Config{}, logger), nil
}
