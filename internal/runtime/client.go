package runtime

import (
	"fmt"

	errspkg "github.com/drblury/netshell/internal/runtime/errors"
)

// Client is the handle of one active transport connection. Every operation
// fails with ErrClientNotFound once the connection has been closed.
type Client struct {
	id     int
	server *Server
}

func newClient(server *Server, id int) *Client {
	return &Client{id: id, server: server}
}

// ID returns the transport assigned connection identifier.
func (c *Client) ID() int { return c.id }

// Send writes data to the client.
func (c *Client) Send(data []byte) error {
	h, err := c.handler("send")
	if err != nil {
		return err
	}
	if !h.Send(c.id, data) {
		return &errspkg.ClientError{Op: "send", ClientID: c.id, Length: len(data), Err: errspkg.ErrSendFailed}
	}
	return nil
}

// Wait writes data to the client and blocks until the transport has flushed it.
func (c *Client) Wait(data []byte) error {
	h, err := c.handler("wait")
	if err != nil {
		return err
	}
	if !h.SendAndWait(c.id, data) {
		return &errspkg.ClientError{Op: "wait", ClientID: c.id, Length: len(data), Err: errspkg.ErrWaitFailed}
	}
	return nil
}

// Pause stops delivery of received data until Resume is called.
func (c *Client) Pause() error { return c.forward("pause", transportHandler.Pause) }

// Resume restarts delivery after Pause.
func (c *Client) Resume() error {
	return c.forward("resume", transportHandler.Resume)
}

// Protect exempts the connection from heartbeat idle checks.
func (c *Client) Protect() error {
	return c.forward("protect", transportHandler.Protect)
}

// Confirm releases a connection held back by delay-receive.
func (c *Client) Confirm() error {
	return c.forward("confirm", transportHandler.Confirm)
}

// Close asks the transport to close the connection. Close listeners run once
// the transport reports the disconnect.
func (c *Client) Close() error {
	return c.forward("close", transportHandler.Close)
}

// IsActive reports whether the transport still knows the connection.
func (c *Client) IsActive() bool {
	h, err := c.handler("exists")
	if err != nil {
		return false
	}
	return h.Exists(c.id)
}

// Info returns the transport's connection details.
func (c *Client) Info() (ClientInfo, error) {
	h, err := c.handler("info")
	if err != nil {
		return ClientInfo{}, err
	}
	raw := h.ClientInfo(c.id)
	if raw == nil {
		return ClientInfo{}, errspkg.NewClientNotFoundError(c.id)
	}
	return parseClientInfo(c.id, raw), nil
}

func (c *Client) String() string {
	return fmt.Sprintf("Client[%d]", c.id)
}

func (c *Client) forward(op string, call func(h transportHandler, id int) bool) error {
	h, err := c.handler(op)
	if err != nil {
		return err
	}
	if !call(h, c.id) {
		return &errspkg.ClientError{Op: op, ClientID: c.id, Err: errspkg.ErrClientOperationFailed}
	}
	return nil
}

// handler resolves the transport for an operation, rejecting handles whose
// connection is no longer registered.
func (c *Client) handler(op string) (transportHandler, error) {
	if c.server == nil {
		return nil, errspkg.NewClientNotFoundError(c.id)
	}
	if current, err := c.server.clients.Get(c.id); err != nil || current != c {
		return nil, errspkg.NewClientNotFoundError(c.id)
	}
	h := c.server.handler()
	if h == nil {
		return nil, &errspkg.ClientError{Op: op, ClientID: c.id, Err: errspkg.ErrIdleServer}
	}
	return h, nil
}
