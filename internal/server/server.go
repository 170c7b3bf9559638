package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/npezzotti/ride-relay/internal/stats"
	"github.com/npezzotti/ride-relay/internal/types"
)

const eventQueueSize = 256

type connectReq struct {
	client *Client
	result chan error
}

type disconnectReq struct {
	id string
}

type stopReq struct {
	done chan struct{}
}

// Relay is the connection registry, message router and presence notifier.
// A single goroutine (Run) owns every mutation of the connection set and
// every broadcast, so "who is connected" at broadcast time is well defined.
type Relay struct {
	log         *log.Logger
	stats       stats.StatsProvider
	clients     map[string]*Client
	clientsLock sync.RWMutex
	// events carries connects, disconnects and chat events in arrival
	// order, so a connection's message and its later disconnect are never
	// reordered.
	events chan any
	stop   chan stopReq
	done   chan struct{}
}

func NewRelay(logger *log.Logger, su stats.StatsProvider) *Relay {
	for _, name := range []string{
		stats.NumConnections,
		stats.MessagesRouted,
		stats.PresenceEvents,
		stats.InvalidMessages,
		stats.SendFailures,
		stats.DuplicateConnects,
	} {
		su.RegisterMetric(name)
	}

	return &Relay{
		log:     logger,
		stats:   su,
		clients: make(map[string]*Client),
		events:  make(chan any, eventQueueSize),
		stop:    make(chan stopReq),
		done:    make(chan struct{}),
	}
}

func (r *Relay) Run() {
	for {
		select {
		case e := <-r.events:
			switch ev := e.(type) {
			case *connectReq:
				ev.result <- r.handleConnect(ev.client)
			case *disconnectReq:
				r.handleDisconnect(ev.id)
			case *types.ChatEvent:
				r.handleChat(ev)
			default:
				r.log.Printf("unknown relay event %T", e)
			}
		case req := <-r.stop:
			r.log.Println("closing connections")
			r.closeAll()
			close(r.done)
			close(req.done)
			return
		}
	}
}

// Connect registers c and announces it to every connected party, c
// included. It fails with ErrDuplicateConnectionId if c's id is taken.
func (r *Relay) Connect(c *Client) error {
	req := &connectReq{client: c, result: make(chan error, 1)}
	if !r.enqueue(req) {
		return ErrRelayStopped
	}

	select {
	case err := <-req.result:
		return err
	case <-r.done:
		return ErrRelayStopped
	}
}

// Disconnect removes the connection with the given id. Unknown ids are
// ignored, so transports may report the same close more than once.
func (r *Relay) Disconnect(id string) {
	r.enqueue(&disconnectReq{id: id})
}

// Route validates one inbound payload from connection connId, stamps it
// with the receipt time and queues it for broadcast. Malformed payloads
// are logged and dropped; the sender is not told.
func (r *Relay) Route(connId string, raw []byte) error {
	received := Now()

	pub, err := ParsePublish(raw)
	if err != nil {
		r.log.Printf("dropping message from %q: %v", connId, err)
		r.stats.Incr(stats.InvalidMessages)
		return err
	}

	ev := &types.ChatEvent{
		ConnectionId: connId,
		SenderId:     pub.SenderId,
		RecipientId:  pub.RecipientId,
		Message:      pub.Message,
		Date:         received,
	}
	if !r.enqueue(ev) {
		return ErrRelayStopped
	}

	return nil
}

func (r *Relay) enqueue(e any) bool {
	if r.Stopped() {
		return false
	}

	select {
	case r.events <- e:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) Count() int {
	r.clientsLock.RLock()
	defer r.clientsLock.RUnlock()
	return len(r.clients)
}

func (r *Relay) Contains(id string) bool {
	r.clientsLock.RLock()
	defer r.clientsLock.RUnlock()
	_, ok := r.clients[id]
	return ok
}

// Stopped reports whether the event loop has exited.
func (r *Relay) Stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Relay) handleConnect(c *Client) error {
	id := c.Id()

	r.clientsLock.Lock()
	if _, ok := r.clients[id]; ok {
		r.clientsLock.Unlock()
		r.log.Printf("rejecting connection %q: %v", id, ErrDuplicateConnectionId)
		r.stats.Incr(stats.DuplicateConnects)
		return fmt.Errorf("%w: %q", ErrDuplicateConnectionId, id)
	}
	r.clients[id] = c
	r.clientsLock.Unlock()

	r.stats.Incr(stats.NumConnections)
	r.log.Printf("connection %q registered", id)

	r.broadcast(r.presence(id, types.PresenceConnected))
	return nil
}

func (r *Relay) handleDisconnect(id string) {
	c, ok := r.removeClient(id)
	if !ok {
		return
	}
	c.close()

	r.broadcast(r.presence(id, types.PresenceDisconnected))
}

func (r *Relay) handleChat(ev *types.ChatEvent) {
	if _, ok := r.clients[ev.ConnectionId]; !ok {
		r.log.Printf("dropping message from unregistered connection %q", ev.ConnectionId)
		return
	}

	r.stats.Incr(stats.MessagesRouted)
	r.broadcast(NewChatMessage(ev))
}

func (r *Relay) presence(id string, kind types.PresenceKind) *ServerMessage {
	r.stats.Incr(stats.PresenceEvents)
	return NewPresenceMessage(&types.PresenceEvent{
		ConnectionId: id,
		Kind:         kind,
		Date:         Now(),
	})
}

// broadcast queues msg for every registered connection. A connection that
// cannot take the message is removed once the fan-out is complete, and the
// resulting Disconnected presence goes out the same way.
func (r *Relay) broadcast(msg *ServerMessage) {
	pending := []*ServerMessage{msg}
	for len(pending) > 0 {
		msg := pending[0]
		pending = pending[1:]

		var failed []*Client
		for _, c := range r.clients {
			if !c.queueMessage(msg) {
				failed = append(failed, c)
			}
		}

		for _, c := range failed {
			r.log.Printf("connection %q: %v, removing", c.Id(), ErrSendFailure)
			r.stats.Incr(stats.SendFailures)
			if _, ok := r.removeClient(c.Id()); !ok {
				continue
			}
			c.close()
			pending = append(pending, r.presence(c.Id(), types.PresenceDisconnected))
		}
	}
}

func (r *Relay) removeClient(id string) (*Client, bool) {
	r.clientsLock.Lock()
	defer r.clientsLock.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, false
	}
	delete(r.clients, id)
	r.stats.Decr(stats.NumConnections)
	r.log.Printf("connection %q removed, %d remaining", id, len(r.clients))

	return c, true
}

func (r *Relay) closeAll() {
	r.clientsLock.Lock()
	defer r.clientsLock.Unlock()

	for id, c := range r.clients {
		c.close()
		delete(r.clients, id)
		r.stats.Decr(stats.NumConnections)
	}
}

// Shutdown stops the event loop and closes every connection. It returns
// ctx's error if the loop does not finish in time.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case r.stop <- req:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}
