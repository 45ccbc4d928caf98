// Package reactor holds the connection table shared by the socket transports.
// It owns the event loop that runs callbacks, the per-connection gates used by
// Pause and Confirm, idle detection and the counters reported by Stats.
package reactor

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/cast"

	"github.com/drblury/netshell/transport"
	"github.com/drblury/netshell/transport/internal/eventloop"
)

// Peer is one accepted connection as seen by the reactor.
type Peer interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
}

// Flusher is implemented by peers that buffer writes.
type Flusher interface {
	Flush() error
}

// ErrNotRunning is returned when an event is submitted after Shutdown.
var ErrNotRunning = errors.New("reactor: not running")

// Options configures a Reactor.
type Options struct {
	Logger         watermill.LoggerAdapter
	MaxConnections int
	HeartbeatIdle  time.Duration
	DelayReceive   bool
	// Port reports the bound server port for ClientInfo.
	Port func() int
}

type peerState struct {
	id          int
	peer        Peer
	connectedAt time.Time
	lastAt      time.Time
	protected   bool
	closing     bool
	// serverClose marks a close started by Close. Such a peer keeps accepting
	// writes until its Close callback has returned.
	serverClose bool
	gate        chan struct{}
	confirmed   chan struct{}
	quit        chan struct{}
	quitOnce    sync.Once
	finishOnce  sync.Once
}

func (p *peerState) stop() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// Reactor dispatches transport events for a set of peers.
type Reactor struct {
	opts Options
	loop *eventloop.Loop

	mu        sync.Mutex
	callbacks map[transport.EventKind]transport.Callback
	peers     map[int]*peerState
	nextID    int
	running   bool
	startAt   time.Time
	accepted  int
	closed    int
	requests  int

	wg sync.WaitGroup
}

// New creates a reactor. The loop is not started until Start.
func New(opts Options) *Reactor {
	if opts.Logger == nil {
		opts.Logger = watermill.NopLogger{}
	}
	r := &Reactor{
		opts:      opts,
		callbacks: make(map[transport.EventKind]transport.Callback),
		peers:     make(map[int]*peerState),
	}
	r.loop = eventloop.New(func(v any) {
		r.opts.Logger.Error("Event callback panicked", errors.New(cast.ToString(v)), nil)
	})
	return r
}

func (r *Reactor) On(kind transport.EventKind, cb transport.Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[kind] = cb
}

// Subscribed reports whether a callback is registered for kind.
func (r *Reactor) Subscribed(kind transport.EventKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.callbacks[kind]
	return ok
}

// Start runs the event loop and dispatches the Start event.
func (r *Reactor) Start() {
	r.mu.Lock()
	r.running = true
	r.startAt = time.Now()
	r.mu.Unlock()

	r.loop.Start()
	r.Dispatch(transport.Event{Kind: transport.EventStart}, nil)
}

// Running reports whether Start was called and Shutdown was not.
func (r *Reactor) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Done is closed once the loop has run its last callback after Shutdown.
func (r *Reactor) Done() <-chan struct{} {
	return r.loop.Done()
}

// Dispatch queues an event. after runs on the loop once the callback returns.
func (r *Reactor) Dispatch(ev transport.Event, after func()) bool {
	return r.loop.Post(func() {
		if err := r.invoke(ev); err != nil {
			r.logCallbackError(ev, err)
		}
		if after != nil {
			after()
		}
	})
}

// Call dispatches an event and waits for its callback to return.
func (r *Reactor) Call(ev transport.Event) error {
	var cbErr error
	if err := r.loop.Call(func() { cbErr = r.invoke(ev) }); err != nil {
		return ErrNotRunning
	}
	if cbErr != nil {
		r.logCallbackError(ev, cbErr)
	}
	return cbErr
}

func (r *Reactor) invoke(ev transport.Event) error {
	r.mu.Lock()
	cb := r.callbacks[ev.Kind]
	r.mu.Unlock()
	if cb == nil {
		return nil
	}
	return cb(ev)
}

func (r *Reactor) logCallbackError(ev transport.Event, err error) {
	r.opts.Logger.Error("Event callback failed", err, watermill.LogFields{
		"event":     ev.Kind.String(),
		"client_id": ev.ClientID,
	})
}

// CountRequest records one served HTTP request.
func (r *Reactor) CountRequest() {
	r.mu.Lock()
	r.requests++
	r.mu.Unlock()
}

// Accept registers a peer and dispatches Connect. It reports false when the
// reactor is stopped or the connection limit is reached; the caller then owns
// closing the peer.
func (r *Reactor) Accept(p Peer) (int, bool) {
	ps, ok := r.register(p, false)
	if !ok {
		return 0, false
	}
	return ps.id, true
}

// Attach accepts a peer and reads from it on a new goroutine until it closes.
func (r *Reactor) Attach(p Peer) (int, bool) {
	ps, ok := r.register(p, true)
	if !ok {
		return 0, false
	}
	go r.serve(ps)
	return ps.id, true
}

func (r *Reactor) register(p Peer, serve bool) (*peerState, bool) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil, false
	}
	if max := r.opts.MaxConnections; max > 0 && r.liveCount() >= max {
		r.mu.Unlock()
		r.opts.Logger.Info("Connection rejected, limit reached", watermill.LogFields{
			"remote_addr":     addrString(p.RemoteAddr()),
			"max_connections": max,
		})
		return nil, false
	}
	r.nextID++
	now := time.Now()
	ps := &peerState{
		id:          r.nextID,
		peer:        p,
		connectedAt: now,
		lastAt:      now,
		confirmed:   make(chan struct{}),
		quit:        make(chan struct{}),
	}
	if !r.opts.DelayReceive {
		close(ps.confirmed)
	}
	r.peers[ps.id] = ps
	r.accepted++
	if serve {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	r.Dispatch(transport.Event{Kind: transport.EventConnect, ClientID: ps.id}, nil)
	return ps, true
}

// Detach dispatches Close for a peer whose connection ended outside the reactor.
func (r *Reactor) Detach(id int) {
	if ps := r.lookup(id); ps != nil {
		r.finish(ps)
	}
}

func (r *Reactor) serve(ps *peerState) {
	defer r.wg.Done()
	defer r.finish(ps)

	select {
	case <-ps.confirmed:
	case <-ps.quit:
		return
	}

	for {
		if r.opts.HeartbeatIdle > 0 {
			if err := ps.peer.SetReadDeadline(r.readDeadline(ps)); err != nil {
				return
			}
		}
		data, err := ps.peer.ReadFrame()
		select {
		case <-ps.quit:
			return
		default:
		}
		if len(data) > 0 {
			r.touch(ps)
			if gate := r.gateOf(ps); gate != nil {
				select {
				case <-gate:
				case <-ps.quit:
					return
				}
			}
			r.Dispatch(transport.Event{Kind: transport.EventReceive, ClientID: ps.id, Data: data}, nil)
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if r.isProtected(ps) {
					continue
				}
				r.opts.Logger.Info("Closing idle connection", watermill.LogFields{"client_id": ps.id})
			}
			return
		}
	}
}

func (r *Reactor) isProtected(ps *peerState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ps.protected
}

func (r *Reactor) readDeadline(ps *peerState) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps.protected {
		return time.Time{}
	}
	return time.Now().Add(r.opts.HeartbeatIdle)
}

func (r *Reactor) finish(ps *peerState) {
	ps.finishOnce.Do(func() {
		r.mu.Lock()
		ps.closing = true
		graceful := ps.serverClose
		r.mu.Unlock()
		ps.stop()
		if !graceful {
			_ = ps.peer.Close()
		}

		remove := func() {
			if graceful {
				if f, ok := ps.peer.(Flusher); ok {
					_ = f.Flush()
				}
				_ = ps.peer.Close()
			}
			r.mu.Lock()
			delete(r.peers, ps.id)
			r.closed++
			r.mu.Unlock()
		}
		if !r.Dispatch(transport.Event{Kind: transport.EventClose, ClientID: ps.id}, remove) {
			remove()
		}
	})
}

// Shutdown closes every peer, dispatches Shutdown and stops the loop. It does
// not wait for the loop; use Done for that.
func (r *Reactor) Shutdown() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	peers := make([]*peerState, 0, len(r.peers))
	for _, ps := range r.peers {
		peers = append(peers, ps)
	}
	r.mu.Unlock()

	for _, ps := range peers {
		ps.stop()
		_ = ps.peer.Close()
	}
	r.wg.Wait()
	for _, ps := range peers {
		r.finish(ps)
	}
	r.Dispatch(transport.Event{Kind: transport.EventShutdown}, nil)
	r.loop.Stop()
}

func (r *Reactor) lookup(id int) *peerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[id]
}

// live returns the peer if it is registered and not closing. r.mu must be held.
func (r *Reactor) live(id int) (*peerState, bool) {
	ps, ok := r.peers[id]
	if !ok || ps.closing {
		return nil, false
	}
	return ps, true
}

// writable returns the peer while writes still reach it. r.mu must be held.
func (r *Reactor) writable(id int) (*peerState, bool) {
	ps, ok := r.peers[id]
	if !ok || (ps.closing && !ps.serverClose) {
		return nil, false
	}
	return ps, true
}

func (r *Reactor) liveCount() int {
	n := 0
	for _, ps := range r.peers {
		if !ps.closing {
			n++
		}
	}
	return n
}

func (r *Reactor) touch(ps *peerState) {
	r.mu.Lock()
	ps.lastAt = time.Now()
	r.mu.Unlock()
}

func (r *Reactor) gateOf(ps *peerState) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ps.gate
}

func (r *Reactor) Send(id int, data []byte) bool {
	r.mu.Lock()
	ps, ok := r.writable(id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := ps.peer.WriteFrame(data); err != nil {
		r.opts.Logger.Debug("Write failed", watermill.LogFields{"client_id": id, "error": err.Error()})
		return false
	}
	return true
}

func (r *Reactor) SendAndWait(id int, data []byte) bool {
	if !r.Send(id, data) {
		return false
	}
	r.mu.Lock()
	ps, ok := r.writable(id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if f, ok := ps.peer.(Flusher); ok {
		return f.Flush() == nil
	}
	return true
}

func (r *Reactor) Pause(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.live(id)
	if !ok {
		return false
	}
	if ps.gate == nil {
		ps.gate = make(chan struct{})
	}
	return true
}

func (r *Reactor) Resume(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.live(id)
	if !ok {
		return false
	}
	if ps.gate != nil {
		close(ps.gate)
		ps.gate = nil
	}
	return true
}

func (r *Reactor) Protect(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.live(id)
	if !ok {
		return false
	}
	ps.protected = true
	return true
}

// Confirm releases reads for a connection accepted while DelayReceive is set.
func (r *Reactor) Confirm(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.live(id)
	if !ok {
		return false
	}
	select {
	case <-ps.confirmed:
		return false
	default:
		close(ps.confirmed)
		return true
	}
}

// Close closes a connection from the server side. Reads stop at once; the
// socket itself is closed after the Close callback, so the callback can still
// send a last frame.
func (r *Reactor) Close(id int) bool {
	r.mu.Lock()
	ps, ok := r.live(id)
	if ok {
		ps.closing = true
		ps.serverClose = true
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ps.stop()
	_ = ps.peer.SetReadDeadline(time.Now())
	r.finish(ps)
	return true
}

func (r *Reactor) Exists(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live(id)
	return ok
}

func (r *Reactor) ClientInfo(id int) map[string]any {
	r.mu.Lock()
	ps, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	connectedAt, lastAt := ps.connectedAt, ps.lastAt
	r.mu.Unlock()

	host, port := splitAddr(ps.peer.RemoteAddr())
	serverPort := 0
	if r.opts.Port != nil {
		serverPort = r.opts.Port()
	}
	return map[string]any{
		"reactor_id":   0,
		"server_port":  serverPort,
		"remote_ip":    host,
		"remote_port":  port,
		"connect_time": connectedAt.Unix(),
		"last_time":    lastAt.Unix(),
	}
}

func (r *Reactor) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"start_time":     r.startAt.Unix(),
		"connection_num": r.liveCount(),
		"accept_count":   r.accepted,
		"close_count":    r.closed,
		"request_count":  r.requests,
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func splitAddr(addr net.Addr) (string, int) {
	host, port, err := net.SplitHostPort(addrString(addr))
	if err != nil {
		return addrString(addr), 0
	}
	return host, cast.ToInt(port)
}
