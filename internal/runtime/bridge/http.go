package bridge

import (
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/netshell/internal/runtime/config"
)

var HTTPPublisherFactory = func(cfg http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(cfg, logger)
}

// httpPublisher posts every message to HTTPPublisherURL followed by the topic.
func httpPublisher(conf *config.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	base := conf.HTTPPublisherURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return HTTPPublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(base+topic, msg)
			},
		},
		logger,
	)
}
