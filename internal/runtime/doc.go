/*
Package runtime provides the event dispatch core of netshell.

# Architecture Overview

A Server owns a transport handler built by a HandlerFactory and subscribes
one dispatcher per event kind to it. Dispatchers read the live listener
registry at the moment an event fires, so listeners may be added before or
after Start.

# Package Structure

## Server (server.go, client.go, clients.go, listeners.go)

  - Server: start/stop orchestration and the event dispatchers
  - Client: per connection handle forwarding operations to the transport
  - ClientRegistry: clients created on Connect and removed after Close
  - ListenerRegistry: capability based registration with snapshot dispatch

## HTTP pipeline (http_server.go, pipeline.go, error_middleware.go)

  - HTTPServer: runs every Request event through ErrorMiddleware, the
    middlewares added with Use and finally the request listeners
  - Next and Pipe: chain of responsibility over Middleware values
  - ErrorMiddleware: converts failures and promoted warnings to responses
  - encoding.go: header copy and gzip/deflate negotiation at the transport

## Listeners and middlewares

  - LoggingListener, MetricsListener, BridgeListener
  - RequestIDMiddleware, TracerMiddleware, MetricsMiddleware,
    LogRequestsMiddleware

## Admin (admin.go)

Prometheus metrics and JSON statistics served on Config.MetricsPort when
Config.MetricsEnabled is set.

# Sub-packages

  - bridge/: watermill publishers for the event bridge
  - config/: server configuration with validation
  - errors/: sentinel errors and error types
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters

# Usage Example

	conf := netshell.NewConfig(9501, "127.0.0.1")
	srv, err := netshell.NewServer(conf, netshell.ServerDependencies{Logger: logger})
	if err != nil {
		return err
	}
	srv.AddListener(netshell.ReceiveFunc(func(s *netshell.Server, c *netshell.Client, data []byte) error {
		return c.Send(data)
	}))
	return srv.Run(ctx)
*/
package runtime
