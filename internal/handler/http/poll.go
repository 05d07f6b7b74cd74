package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pollroom/internal/scheduler"
	"pollroom/internal/service"
)

// PollHandler serves the REST surface for poll rooms.
type PollHandler struct {
	polls *service.PollService
	pub   scheduler.Publisher
}

// NewPollHandler creates a PollHandler. pub fans room events out to
// websocket subscribers; it must not be nil.
func NewPollHandler(polls *service.PollService, pub scheduler.Publisher) *PollHandler {
	if polls == nil {
		panic("PollService cannot be nil for PollHandler")
	}
	if pub == nil {
		panic("Publisher cannot be nil for PollHandler")
	}
	return &PollHandler{polls: polls, pub: pub}
}

// CreateRoomRequest is the body for room creation.
type CreateRoomRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required,min=2"`
}

// CreateRoom creates a poll room owned by the authenticated guest.
func (h *PollHandler) CreateRoom(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: question and at least two options required"})
		return
	}

	snapshot, err := h.polls.CreateRoom(c.Request.Context(), req.Question, req.Options, userID)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Failed to create room")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("room_id", snapshot.ID).Info("Handler.CreateRoom: Room created")
	SuccessResponse(c, http.StatusCreated, gin.H{
		"message": "Room created successfully",
		"room":    snapshot,
	})
}

// GetRoom returns the current state of a poll room.
func (h *PollHandler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	snapshot, err := h.polls.GetRoomState(c.Request.Context(), roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Handler.GetRoom: Lookup failed")
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"room": snapshot})
}

// VoteRequest is the body for a REST vote. OptionIndex is a pointer so
// index 0 survives the required check.
type VoteRequest struct {
	OptionIndex *int `json:"optionIndex" binding:"required"`
}

// CastVote records the authenticated guest's vote and fans the
// refreshed tally out to websocket subscribers.
func (h *PollHandler) CastVote(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := c.GetString("user_id")
	username := c.GetString("username")
	if userID == "" {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"room_id": roomID,
	})

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CastVote: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: optionIndex required"})
		return
	}

	snapshot, err := h.polls.CastVote(c.Request.Context(), roomID, userID, username, *req.OptionIndex)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CastVote: Failed to cast vote")
		HandleServiceError(c, err)
		return
	}

	h.pub.PublishRoomUpdate(roomID, snapshot)

	logCtx.WithField("option_index", *req.OptionIndex).Info("Handler.CastVote: Vote recorded")
	SuccessResponse(c, http.StatusOK, gin.H{
		"message": "Vote recorded",
		"room":    snapshot,
	})
}

// CloseRoom ends voting in a room ahead of its deadline.
func (h *PollHandler) CloseRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": c.GetString("user_id"),
		"room_id": roomID,
	})

	snapshot, flipped, err := h.polls.CloseRoom(c.Request.Context(), roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CloseRoom: Failed to close room")
		HandleServiceError(c, err)
		return
	}

	// Subscribers see the final tally before the expiry notice.
	if flipped {
		h.pub.PublishRoomUpdate(roomID, snapshot)
		h.pub.PublishPollExpired(roomID)
		h.polls.EvictRoom(roomID)
	}

	logCtx.Info("Handler.CloseRoom: Room closed")
	SuccessResponse(c, http.StatusOK, gin.H{
		"message": "Room closed",
		"room":    snapshot,
	})
}
