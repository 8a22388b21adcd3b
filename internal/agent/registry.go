package agent

import (
	"log/slog"
	"sync"
)

// Registry hands out at most one live Client per session ID, so two
// commands targeting the same session share a socket instead of
// racing for it.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	clients map[string]*Client
}

// NewRegistry creates a registry whose clients share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg.withDefaults(),
		clients: make(map[string]*Client),
	}
}

// Client returns the live client for sessionID, creating one on first
// use.
func (r *Registry) Client(sessionID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[sessionID]; ok {
		return c
	}
	c := NewClient(sessionID, r.cfg)
	r.clients[sessionID] = c
	slog.Debug("registered session client", "session_id", sessionID)
	return c
}

// Release disconnects and forgets the client for sessionID, if any.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	c, ok := r.clients[sessionID]
	delete(r.clients, sessionID)
	r.mu.Unlock()

	if ok {
		c.Disconnect()
	}
}

// Shutdown disconnects every live client.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
}
