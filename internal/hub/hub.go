// Package hub is the broadcast protocol: it keeps the per-room
// subscriber sets and fans authoritative room state out to every
// connected participant.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pollroom/internal/domain"
	"pollroom/internal/service"
)

// WebSocket timing and size limits shared by hub and client.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Per-command deadline for service calls made on behalf of a
	// connection.
	commandTimeout = 5 * time.Second
)

// HubMessage is the internal unit passed from client pumps to the Hub
// loop.
type HubMessage struct {
	Type    string // "register", "unregister", "command"
	Client  *Client
	RawData []byte // raw command frame, only for "command"
}

// Hub coordinates clients: registration, command dispatch and room
// fan-out. One Run loop owns the message channel; the subscriber sets
// are guarded separately so publishes from the scheduler do not go
// through the loop.
type Hub struct {
	messageChan chan HubMessage

	// rooms maps roomID -> subscribed clients.
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	polls    *service.PollService
	identity *service.IdentityService

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a Hub.
func NewHub(polls *service.PollService, identity *service.IdentityService) *Hub {
	if polls == nil {
		panic("PollService cannot be nil for Hub")
	}
	if identity == nil {
		panic("IdentityService cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		polls:       polls,
		identity:    identity,
		stop:        make(chan struct{}),
	}
}

// Run is the Hub's event loop. It should run in its own goroutine.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running")

	for {
		select {
		case <-h.stop:
			log.Info("Hub is shutting down")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "command":
				// Commands block on the store; keep the loop free. The
				// per-room lock in the service serializes what must be
				// serialized.
				go h.handleCommand(msg)
			default:
				log.Warnf("Received unknown hub message type: %s", msg.Type)
			}
		}
	}
}

// Stop halts the Run loop. Client pumps die with their connections
// when the HTTP server shuts down.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// QueueMessage enqueues a message for the Run loop without blocking.
// Returns false if the hub is overloaded and the message was dropped.
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"user_id":      msg.Client.UserID(),
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		return
	}
	logrus.WithField("user_id", client.UserID()).Info("Client registered to hub")
	// Socket attach counts as user activity.
	go h.identity.TouchLastActive(context.Background(), client.UserID())
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	logCtx := logrus.WithField("user_id", client.UserID())

	h.roomsMu.Lock()
	for roomID := range client.rooms {
		if subs, ok := h.rooms[roomID]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	client.rooms = make(map[string]bool)
	h.roomsMu.Unlock()

	// The read pump sends exactly one unregister per client. The send
	// channel is never closed; a publish racing this unregister just
	// writes frames nobody drains. Closing done stops the write pump.
	close(client.done)
	logCtx.Info("Client unregistered from hub")
}

// subscribe adds the client to a room's fan-out set and immediately
// pushes the current snapshot so a fresh subscriber never waits for
// the next mutation to see state.
func (h *Hub) subscribe(client *Client, roomID string, snapshot *domain.RoomSnapshot) {
	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
	h.roomsMu.Unlock()

	h.sendToClient(client, roomUpdateEvent{Type: evtRoomUpdate, Room: snapshot})
}

// unsubscribe removes the client from one room's fan-out set.
func (h *Hub) unsubscribe(client *Client, roomID string) {
	h.roomsMu.Lock()
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
	h.roomsMu.Unlock()
}

// handleCommand parses and dispatches one inbound frame.
func (h *Hub) handleCommand(msg HubMessage) {
	client := msg.Client
	logCtx := logrus.WithField("user_id", client.UserID())

	var frame clientMessage
	if err := json.Unmarshal(msg.RawData, &frame); err != nil {
		logCtx.WithError(err).Debug("Dropping malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch frame.Type {
	case cmdCreateRoom:
		h.handleCreateRoom(ctx, client, frame.Payload)
	case cmdJoinRoom:
		h.handleJoinRoom(ctx, client, frame.Payload)
	case cmdCastVote:
		h.handleCastVote(ctx, client, frame.Payload)
	case cmdLeaveRoom:
		var p leaveRoomPayload
		if err := json.Unmarshal(frame.Payload, &p); err == nil && p.RoomID != "" {
			h.unsubscribe(client, p.RoomID)
		}
	case cmdGetRoomState:
		h.handleGetRoomState(ctx, client, frame.Payload)
	default:
		logCtx.Warnf("Received unknown command type: %s", frame.Type)
	}
}

func (h *Hub) handleCreateRoom(ctx context.Context, client *Client, payload json.RawMessage) {
	var p createRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendToClient(client, ackEvent{Type: evtRoomCreated, Success: false, Error: service.ErrInvalidPoll.Error()})
		return
	}

	snapshot, err := h.polls.CreateRoom(ctx, p.Question, p.Options, client.UserID())
	if err != nil {
		h.sendToClient(client, ackEvent{Type: evtRoomCreated, Success: false, Error: err.Error()})
		return
	}

	h.subscribe(client, snapshot.ID, snapshot)
	h.sendToClient(client, ackEvent{Type: evtRoomCreated, Success: true, RoomID: snapshot.ID})
}

func (h *Hub) handleJoinRoom(ctx context.Context, client *Client, payload json.RawMessage) {
	var p joinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		h.sendToClient(client, ackEvent{Type: evtRoomJoined, Success: false, Error: service.ErrRoomNotFound.Error()})
		return
	}

	snapshot, err := h.polls.GetRoomState(ctx, p.RoomID)
	if err != nil {
		h.sendToClient(client, ackEvent{Type: evtRoomJoined, Success: false, RoomID: p.RoomID, Error: err.Error()})
		return
	}

	h.subscribe(client, p.RoomID, snapshot)
	h.sendToClient(client, ackEvent{Type: evtRoomJoined, Success: true, RoomID: p.RoomID})
}

func (h *Hub) handleCastVote(ctx context.Context, client *Client, payload json.RawMessage) {
	var p castVotePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" || p.OptionIndex == nil {
		h.sendToClient(client, ackEvent{Type: evtVoteAck, Success: false, Error: service.ErrInvalidVote.Error()})
		return
	}

	snapshot, err := h.polls.CastVote(ctx, p.RoomID, client.UserID(), client.Username(), *p.OptionIndex)
	if err != nil {
		// Single canonical reply path for every failure kind.
		h.sendToClient(client, ackEvent{Type: evtVoteAck, Success: false, RoomID: p.RoomID, Error: err.Error()})
		return
	}

	h.sendToClient(client, ackEvent{Type: evtVoteAck, Success: true, RoomID: p.RoomID})
	h.PublishRoomUpdate(p.RoomID, snapshot)
}

func (h *Hub) handleGetRoomState(ctx context.Context, client *Client, payload json.RawMessage) {
	var p getRoomStatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		return
	}
	snapshot, err := h.polls.GetRoomState(ctx, p.RoomID)
	if err != nil {
		h.sendToClient(client, ackEvent{Type: evtRoomJoined, Success: false, RoomID: p.RoomID, Error: err.Error()})
		return
	}
	h.sendToClient(client, roomUpdateEvent{Type: evtRoomUpdate, Room: snapshot})
}

// PublishRoomUpdate broadcasts the room's latest snapshot to every
// subscriber. Best-effort: a slow client's frame is dropped, delivery
// past that is the transport's problem.
func (h *Hub) PublishRoomUpdate(roomID string, snapshot *domain.RoomSnapshot) {
	h.publish(roomID, roomUpdateEvent{Type: evtRoomUpdate, Room: snapshot})
}

// PublishPollExpired broadcasts the expiry notice for a room. The
// scheduler calls it exactly once per active→closed flip.
func (h *Hub) PublishPollExpired(roomID string) {
	h.publish(roomID, pollExpiredEvent{Type: evtPollExpired, RoomID: roomID})
}

func (h *Hub) publish(roomID string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to marshal event")
		return
	}

	h.roomsMu.RLock()
	subs := h.rooms[roomID]
	recipients := make([]*Client, 0, len(subs))
	for client := range subs {
		recipients = append(recipients, client)
	}
	h.roomsMu.RUnlock()

	for _, client := range recipients {
		select {
		case client.send <- data:
		default:
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": client.UserID(),
			}).Warn("Client send channel full, dropping event")
		}
	}
}

// sendToClient unicasts one event, dropping it if the client's queue
// is full.
func (h *Hub) sendToClient(client *Client, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal event")
		return
	}
	select {
	case client.send <- data:
	default:
		logrus.WithField("user_id", client.UserID()).
			Warn("Client send channel full, dropping reply")
	}
}

// SubscriberCount reports how many clients are subscribed to a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}
