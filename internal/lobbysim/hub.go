/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file defines the Hub and its per-lobby rooms. Each room runs its own
event loop handling client registration, deregistration, and broadcasting;
the Hub creates rooms lazily on the first connection and tears them down when
a lobby closes.
*/
package lobbysim

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/transport"
)

const broadcastChannelBuffer = 256

// Hub owns the set of live rooms, keyed by lobby id.
type Hub struct {
	mu    sync.Mutex
	rooms map[int64]*Room
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]*Room)}
}

// Room returns the room for a lobby, creating and starting it when absent.
func (h *Hub) Room(lobbyID int64) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[lobbyID]
	if !ok {
		room = newRoom(lobbyID)
		h.rooms[lobbyID] = room
		go room.run()
	}
	return room
}

// Broadcast sends an event to every client in a lobby's room. A lobby with no
// live room has no one to notify.
func (h *Hub) Broadcast(lobbyID int64, ev transport.Event) {
	h.mu.Lock()
	room, ok := h.rooms[lobbyID]
	h.mu.Unlock()

	if ok {
		room.enqueue(ev)
	}
}

// DisconnectUser closes one user's connection in a lobby, if any.
func (h *Hub) DisconnectUser(lobbyID, userID int64) {
	h.mu.Lock()
	room, ok := h.rooms[lobbyID]
	h.mu.Unlock()

	if ok {
		room.disconnect(userID)
	}
}

// CloseRoom stops a lobby's room and drops it from the hub.
func (h *Hub) CloseRoom(lobbyID int64) {
	h.mu.Lock()
	room, ok := h.rooms[lobbyID]
	delete(h.rooms, lobbyID)
	h.mu.Unlock()

	if ok {
		room.stop()
	}
}

// Room is the event loop for one lobby's realtime clients.
type Room struct {
	lobbyID int64

	mu      sync.RWMutex
	clients map[int64]*wsClient

	broadcast  chan transport.Event
	register   chan *wsClient
	unregister chan *wsClient
	stopChan   chan struct{}
	stopOnce   sync.Once

	logger zerolog.Logger
}

func newRoom(lobbyID int64) *Room {
	return &Room{
		lobbyID:    lobbyID,
		clients:    make(map[int64]*wsClient),
		broadcast:  make(chan transport.Event, broadcastChannelBuffer),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stopChan:   make(chan struct{}),
		logger:     logx.Logger().With().Int64("lobby_id", lobbyID).Logger(),
	}
}

// run is the room's main loop. It owns the clients map mutations.
func (r *Room) run() {
	defer func() {
		r.mu.Lock()
		for _, client := range r.clients {
			client.closeSend()
		}
		r.clients = make(map[int64]*wsClient)
		r.mu.Unlock()

		r.logger.Info().Msg("Room loop finished")
	}()

	for {
		select {
		case client := <-r.register:
			r.mu.Lock()
			if existing, ok := r.clients[client.user.ID]; ok {
				r.logger.Warn().Int64("user_id", client.user.ID).Msg("Replacing existing connection for user")
				existing.kick("Session replaced by new connection.")
			}
			r.clients[client.user.ID] = client
			total := len(r.clients)
			r.mu.Unlock()

			r.logger.Info().Int64("user_id", client.user.ID).Int("total_users", total).Msg("Client joined room")

			// The new client learns who was already here, then everyone
			// (itself included) sees it arrive.
			for _, online := range r.onlineUsers() {
				if online.ID != client.user.ID {
					user := online
					client.sendEvent(transport.Event{Type: transport.EventUserJoined, User: &user})
				}
			}

			r.deliver(transport.Event{Type: transport.EventUserJoined, User: &client.user})

		case client := <-r.unregister:
			r.mu.Lock()
			current, ok := r.clients[client.user.ID]
			if ok && current == client {
				delete(r.clients, client.user.ID)
				client.closeSend()
			}
			total := len(r.clients)
			r.mu.Unlock()

			if ok && current == client {
				r.logger.Info().Int64("user_id", client.user.ID).Int("total_users", total).Msg("Client left room")
				r.deliver(transport.Event{Type: transport.EventUserLeft, User: &client.user})
			}

		case ev := <-r.broadcast:
			r.deliver(ev)

		case <-r.stopChan:
			return
		}
	}
}

// deliver fans one event out to every connected client.
func (r *Room) deliver(ev transport.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to marshal broadcast event")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, client := range r.clients {
		select {
		case client.send <- data:
		default:
			r.logger.Warn().Int64("user_id", client.user.ID).Msg("Client send queue full, dropping event")
		}
	}
}

// enqueue queues an event for broadcast without blocking the caller.
func (r *Room) enqueue(ev transport.Event) {
	select {
	case r.broadcast <- ev:
	case <-r.stopChan:
	default:
		r.logger.Warn().Str("event_type", string(ev.Type)).Msg("Broadcast channel full, dropping event")
	}
}

// disconnect kicks one user's connection out of the room.
func (r *Room) disconnect(userID int64) {
	r.mu.RLock()
	client, ok := r.clients[userID]
	r.mu.RUnlock()

	if ok {
		client.kick("Removed from lobby.")
	}
}

// stop terminates the room loop.
func (r *Room) stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// registerClient queues a client for registration.
func (r *Room) registerClient(client *wsClient) {
	select {
	case r.register <- client:
	case <-r.stopChan:
		client.kick("Lobby closed.")
	}
}

// unregisterClient queues a client for removal.
func (r *Room) unregisterClient(client *wsClient) {
	select {
	case r.unregister <- client:
	case <-r.stopChan:
	}
}

// onlineUsers snapshots the connected identities.
func (r *Room) onlineUsers() []api.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]api.User, 0, len(r.clients))
	for _, client := range r.clients {
		users = append(users, client.user)
	}
	return users
}
