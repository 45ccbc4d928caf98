package websocket

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer adapts a websocket connection to the reactor. gorilla allows one
// concurrent writer, so writes are serialized.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	readMu sync.Mutex
	failed bool
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{conn: conn}
}

// ReadFrame returns the next message. A websocket connection cannot be read
// again after an error, so later calls report io.ErrClosedPipe.
func (p *peer) ReadFrame() ([]byte, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	if p.failed {
		return nil, io.ErrClosedPipe
	}
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		p.failed = true
		return nil, err
	}
	return data, nil
}

func (p *peer) WriteFrame(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *peer) Close() error {
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	return p.conn.Close()
}

func (p *peer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

func (p *peer) SetReadDeadline(t time.Time) error {
	return p.conn.SetReadDeadline(t)
}
