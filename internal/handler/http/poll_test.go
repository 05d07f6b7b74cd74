package http_test

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pollroom/internal/cache"
	"pollroom/internal/domain"
	handler "pollroom/internal/handler/http"
	"pollroom/internal/repository"
	"pollroom/internal/repository/mocks"
	"pollroom/internal/service"
)

// recordingPublisher captures fan-out calls from the close endpoint.
type recordingPublisher struct {
	mu      sync.Mutex
	updates []string
	expired []string
}

func (p *recordingPublisher) PublishRoomUpdate(roomID string, _ *domain.RoomSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, roomID)
}

func (p *recordingPublisher) PublishPollExpired(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, roomID)
}

func newPollHandler(mockPollRepo *mocks.PollRepository) (*handler.PollHandler, *recordingPublisher) {
	polls := service.NewPollService(
		mockPollRepo,
		service.NewRoomCodeGenerator(mockPollRepo),
		cache.NewRoomCache(),
		nil,
		time.Hour,
		time.Second,
	)
	pub := &recordingPublisher{}
	return handler.NewPollHandler(polls, pub), pub
}

func testContext(t *testing.T, method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := nethttp.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func activeStoredPoll(roomID string) *domain.Poll {
	poll := &domain.Poll{
		ID:        7,
		RoomID:    roomID,
		Question:  "Cats or dogs?",
		CreatedBy: "user_creator",
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  true,
	}
	_ = poll.SetOptions([]string{"Cats", "Dogs"})
	return poll
}

func TestPollHandler_CreateRoom_Success(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, _ := newPollHandler(mockPollRepo)

	mockPollRepo.On("RoomIDExists", mock.Anything, mock.AnythingOfType("string")).Return(false, nil)
	mockPollRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Poll")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Poll).ID = 7 }).
		Return(nil)

	c, w := testContext(t, "POST", "/api/polls", gin.H{
		"question": "Cats or dogs?",
		"options":  []string{"Cats", "Dogs"},
	})
	c.Set("user_id", "user_creator")

	h.CreateRoom(c)

	assert.Equal(t, nethttp.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Room created successfully")

	var resp struct {
		Room domain.RoomSnapshot `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^[0-9A-Z]{6}$`, resp.Room.ID)
	assert.True(t, resp.Room.IsActive)
}

func TestPollHandler_CreateRoom_InvalidBody(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, _ := newPollHandler(mockPollRepo)

	c, w := testContext(t, "POST", "/api/polls", gin.H{"question": "Q?", "options": []string{"only one"}})
	c.Set("user_id", "user_creator")

	h.CreateRoom(c)

	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	mockPollRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPollHandler_CreateRoom_Unauthenticated(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, _ := newPollHandler(mockPollRepo)

	c, w := testContext(t, "POST", "/api/polls", gin.H{
		"question": "Q?",
		"options":  []string{"A", "B"},
	})

	h.CreateRoom(c)

	assert.Equal(t, nethttp.StatusUnauthorized, w.Code)
}

func TestPollHandler_GetRoom(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, _ := newPollHandler(mockPollRepo)

	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(activeStoredPoll("ROOM01"), nil)

	c, w := testContext(t, "GET", "/api/polls/ROOM01", nil)
	c.Params = gin.Params{{Key: "roomId", Value: "ROOM01"}}

	h.GetRoom(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"ROOM01"`)
}

func TestPollHandler_GetRoom_NotFound(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, _ := newPollHandler(mockPollRepo)

	mockPollRepo.On("FindByRoomID", mock.Anything, "NOPE42").Return(nil, repository.ErrPollNotFound)

	c, w := testContext(t, "GET", "/api/polls/NOPE42", nil)
	c.Params = gin.Params{{Key: "roomId", Value: "NOPE42"}}

	h.GetRoom(c)

	assert.Equal(t, nethttp.StatusNotFound, w.Code)
}

func TestPollHandler_CastVote_RecordsAndBroadcasts(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, pub := newPollHandler(mockPollRepo)

	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(activeStoredPoll("ROOM01"), nil)
	mockPollRepo.On("AppendVote", mock.Anything, uint(7), mock.MatchedBy(func(v *domain.Vote) bool {
		return v.UserID == "user_a" && v.OptionIndex == 1
	})).Return(nil).Once()

	c, w := testContext(t, "POST", "/api/polls/ROOM01/vote", gin.H{"optionIndex": 1})
	c.Params = gin.Params{{Key: "roomId", Value: "ROOM01"}}
	c.Set("user_id", "user_a")
	c.Set("username", "alice")

	h.CastVote(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Vote recorded")
	assert.Equal(t, []string{"ROOM01"}, pub.updates)
	mockPollRepo.AssertExpectations(t)
}

func TestPollHandler_CastVote_MissingOptionIndex(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, pub := newPollHandler(mockPollRepo)

	c, w := testContext(t, "POST", "/api/polls/ROOM01/vote", gin.H{})
	c.Params = gin.Params{{Key: "roomId", Value: "ROOM01"}}
	c.Set("user_id", "user_a")
	c.Set("username", "alice")

	h.CastVote(c)

	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.Empty(t, pub.updates)
	mockPollRepo.AssertNotCalled(t, "AppendVote", mock.Anything, mock.Anything, mock.Anything)
}

func TestPollHandler_CastVote_DuplicateConflict(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, pub := newPollHandler(mockPollRepo)

	poll := activeStoredPoll("ROOM01")
	poll.Votes = []domain.Vote{{PollID: poll.ID, UserID: "user_a", Username: "alice", OptionIndex: 0}}
	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(poll, nil)

	c, w := testContext(t, "POST", "/api/polls/ROOM01/vote", gin.H{"optionIndex": 1})
	c.Params = gin.Params{{Key: "roomId", Value: "ROOM01"}}
	c.Set("user_id", "user_a")
	c.Set("username", "alice")

	h.CastVote(c)

	assert.Equal(t, nethttp.StatusConflict, w.Code)
	assert.Empty(t, pub.updates)
	mockPollRepo.AssertNotCalled(t, "AppendVote", mock.Anything, mock.Anything, mock.Anything)
}

func TestPollHandler_CloseRoom_BroadcastsOnFlip(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, pub := newPollHandler(mockPollRepo)

	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(activeStoredPoll("ROOM01"), nil)
	mockPollRepo.On("SetActive", mock.Anything, "ROOM01", false).Return(nil).Once()

	c, w := testContext(t, "PUT", "/api/polls/ROOM01/close", nil)
	c.Params = gin.Params{{Key: "roomId", Value: "ROOM01"}}
	c.Set("user_id", "user_creator")

	h.CloseRoom(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Equal(t, []string{"ROOM01"}, pub.updates, "the final tally goes out before the expiry notice")
	assert.Equal(t, []string{"ROOM01"}, pub.expired)
}

func TestPollHandler_CloseRoom_IdempotentNoSecondBroadcast(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	h, pub := newPollHandler(mockPollRepo)

	poll := activeStoredPoll("ROOM01")
	poll.IsActive = false
	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(poll, nil)

	c, w := testContext(t, "PUT", "/api/polls/ROOM01/close", nil)
	c.Params = gin.Params{{Key: "roomId", Value: "ROOM01"}}
	c.Set("user_id", "user_creator")

	h.CloseRoom(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Empty(t, pub.updates)
	assert.Empty(t, pub.expired)
	mockPollRepo.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything, mock.Anything)
}
