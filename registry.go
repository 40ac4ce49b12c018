package main

import (
	"sync"
	"time"
)

const sendQueueSize = 16

type identityType string

const (
	identityUser   identityType = "user"
	identityViewer identityType = "viewer"
)

// pushConn is the write side of a push channel. *websocket.Conn
// satisfies it; tests substitute a fake.
type pushConn interface {
	WriteJSON(v any) error
	Close() error
}

type connection struct {
	id           string
	identityType identityType
	identity     string
	conn         pushConn
	send         chan any
	subscribed   map[string]bool
	expiresAt    time.Time
}

// registry tracks live push connections keyed by connection ID. Sends
// are best-effort: a peer that cannot accept a message is pruned and
// the failure never reaches the caller. Entries carry a TTL so
// abandoned connections are reaped even when no disconnect is ever
// observed.
type registry struct {
	mu    sync.Mutex
	conns map[string]*connection
	ttl   time.Duration
	cfg   *Config
}

func newRegistry(cfg *Config) *registry {
	r := &registry{
		conns: make(map[string]*connection),
		ttl:   cfg.connTimeout,
		cfg:   cfg,
	}
	if r.ttl > 0 {
		go r.reaperLoop()
	}
	return r
}

func (r *registry) register(id string, kind identityType, identity string, conn pushConn) *connection {
	c := &connection{
		id:           id,
		identityType: kind,
		identity:     identity,
		conn:         conn,
		send:         make(chan any, sendQueueSize),
		subscribed:   make(map[string]bool),
		expiresAt:    time.Now().Add(r.ttl),
	}

	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()

	logf(r.cfg, "WS: Registered %s connection %s (%s)", kind, id, identity)

	return c
}

func (r *registry) unregister(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		close(c.send)
	}
	r.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		logf(r.cfg, "WS: Unregistered connection %s", id)
	}
}

// touch extends a connection's TTL on observed activity.
func (r *registry) touch(id string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.expiresAt = time.Now().Add(r.ttl)
	}
	r.mu.Unlock()
}

func (r *registry) subscribe(id, gameID string, on bool) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		if on {
			c.subscribed[gameID] = true
		} else {
			delete(c.subscribed, gameID)
		}
	}
	r.mu.Unlock()
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// send queues a message for one connection. If the peer cannot keep up
// or is already gone, the connection is pruned; the error is never
// propagated.
func (r *registry) send(id string, msg any) {
	r.mu.Lock()

	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	select {
	case c.send <- msg:
		r.mu.Unlock()
	default:
		delete(r.conns, id)
		close(c.send)
		r.mu.Unlock()
		_ = c.conn.Close()
		logf(r.cfg, "WS: Pruned unresponsive connection %s", id)
	}
}

// broadcast delivers a message to every registered connection
// concurrently. Individual failures only prune the failing peer; the
// call itself never fails and never blocks on a single dead connection.
func (r *registry) broadcast(msg any) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.send(id, msg)
		}(id)
	}
	wg.Wait()
}

// reaperLoop periodically removes connections whose TTL has lapsed.
func (r *registry) reaperLoop() {
	ticker := time.NewTicker(r.ttl / 2)
	for range ticker.C {
		now := time.Now()

		r.mu.Lock()
		var expired []*connection
		for id, c := range r.conns {
			if c.expiresAt.Before(now) {
				delete(r.conns, id)
				close(c.send)
				expired = append(expired, c)
			}
		}
		r.mu.Unlock()

		for _, c := range expired {
			_ = c.conn.Close()
			logf(r.cfg, "WS: Reaped expired connection %s", c.id)
		}
	}
}

// writePump drains a connection's queue onto the wire. A failed write
// means the peer is gone; the read side notices the closed socket and
// unregisters.
func (c *connection) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
