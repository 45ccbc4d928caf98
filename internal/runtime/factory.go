package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	configpkg "github.com/drblury/netshell/internal/runtime/config"
	errspkg "github.com/drblury/netshell/internal/runtime/errors"
	"github.com/drblury/netshell/transport"

	// Import the built-in transports so they register themselves.
	_ "github.com/drblury/netshell/transport/http"
	_ "github.com/drblury/netshell/transport/memory"
	_ "github.com/drblury/netshell/transport/tcp"
	_ "github.com/drblury/netshell/transport/websocket"
)

// HandlerFactory abstracts how a Server obtains its transport handler.
type HandlerFactory interface {
	Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transport.Handler, error)
}

// HandlerFactoryFunc adapts a function to HandlerFactory.
type HandlerFactoryFunc func(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transport.Handler, error)

func (f HandlerFactoryFunc) Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transport.Handler, error) {
	return f(ctx, conf, logger)
}

// DefaultHandlerFactory returns the factory that picks a transport from the
// registry by Config.Transport.
func DefaultHandlerFactory() HandlerFactory {
	return defaultHandlerFactory{}
}

type defaultHandlerFactory struct{}

func (defaultHandlerFactory) Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transport.Handler, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	return transport.Build(ctx, conf, logger)
}
