// Package netshell is an event-driven network server shell. A Server owns a
// transport handler (TCP, WebSocket, HTTP or the in-memory transport used in
// tests), translates its callbacks into listener calls and keeps a registry of
// the connected clients.
//
// Listeners are plain values implementing any subset of StartListener,
// ConnectListener, ReceiveListener, CloseListener, ShutdownListener and
// RequestListener. AddListener registers a value for every capability it has;
// dispatch always runs every listener of an event in registration order, even
// when one of them fails, and the failures are joined into one error.
//
// A Client is the handle passed to listeners. It is valid from the moment
// Connect listeners run until the Close listeners have returned; afterwards
// every operation reports ErrClientNotFound.
//
// # HTTP
//
// HTTPServer runs Request events through a middleware pipeline. The error
// middleware always comes first and turns failures into responses: an
// HTTPError answers with its own response, anything else with a 500 carrying
// the error message. Responses are content encoded with gzip or deflate when
// the client accepts it.
//
// # Observability
//
// LoggingListener, MetricsListener and BridgeListener are ready-made listeners
// for structured logs, Prometheus metrics and forwarding lifecycle events to a
// Watermill publisher (Kafka, RabbitMQ, NATS, HTTP, AWS SNS or Go channels).
// When Config.MetricsEnabled is set the server also exposes /metrics together
// with a small JSON admin API.
package netshell
