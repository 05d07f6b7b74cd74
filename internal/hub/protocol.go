package hub

import (
	"encoding/json"

	"pollroom/internal/domain"
)

// Command types accepted from a connection.
const (
	cmdCreateRoom   = "create_room"
	cmdJoinRoom     = "join_room"
	cmdCastVote     = "cast_vote"
	cmdLeaveRoom    = "leave_room" // fire-and-forget, no reply
	cmdGetRoomState = "get_room_state"
)

// Event types pushed to connections.
const (
	evtRoomUpdate  = "room_update"
	evtPollExpired = "poll_expired"
	evtVoteAck     = "vote_ack"
	evtRoomCreated = "room_created"
	evtRoomJoined  = "room_joined"
)

// clientMessage is the envelope for every inbound command.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createRoomPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type castVotePayload struct {
	RoomID      string `json:"roomId"`
	OptionIndex *int   `json:"optionIndex"` // pointer so a missing index is not option 0
}

type leaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type getRoomStatePayload struct {
	RoomID string `json:"roomId"`
}

// roomUpdateEvent carries the full snapshot; it is both the room
// broadcast and the unicast resync reply.
type roomUpdateEvent struct {
	Type string               `json:"type"`
	Room *domain.RoomSnapshot `json:"room"`
}

type pollExpiredEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ackEvent is the single reply shape for every command outcome. Every
// validation failure comes back this way; there is no separate error
// event channel.
type ackEvent struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	RoomID  string `json:"roomId,omitempty"`
	Error   string `json:"error,omitempty"`
}
