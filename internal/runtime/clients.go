package runtime

import (
	"sort"
	"sync"

	errspkg "github.com/drblury/netshell/internal/runtime/errors"
)

// ClientRegistry tracks the clients of one server by connection identifier.
// Only the server's connect and close dispatchers mutate it.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[int]*Client
}

// NewClientRegistry returns an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[int]*Client)}
}

// add stores client unless its identifier is taken, returning the instance
// that ends up registered.
func (r *ClientRegistry) add(client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[client.id]; ok {
		return existing
	}
	r.clients[client.id] = client
	return client
}

func (r *ClientRegistry) remove(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

func (r *ClientRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[int]*Client)
}

// Get returns the client registered under id or a client not found error.
func (r *ClientRegistry) Get(id int) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if client, ok := r.clients[id]; ok {
		return client, nil
	}
	return nil, errspkg.NewClientNotFoundError(id)
}

// Has reports whether id is registered.
func (r *ClientRegistry) Has(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[id]
	return ok
}

// Count returns the number of registered clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// All returns the registered clients ordered by identifier.
func (r *ClientRegistry) All() []*Client {
	r.mu.RLock()
	all := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		all = append(all, client)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	return all
}
