package tcp

import (
	"net"
	"sync"
)

const readBufferSize = 64 * 1024

type peer struct {
	net.Conn
	buf     []byte
	writeMu sync.Mutex
}

func newPeer(conn net.Conn) *peer {
	return &peer{Conn: conn, buf: make([]byte, readBufferSize)}
}

func (p *peer) ReadFrame() ([]byte, error) {
	n, err := p.Read(p.buf)
	if n == 0 {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, p.buf[:n])
	return data, err
}

func (p *peer) WriteFrame(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for len(data) > 0 {
		n, err := p.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
