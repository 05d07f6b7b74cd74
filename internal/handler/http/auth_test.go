package http_test

import (
	"encoding/json"
	nethttp "net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pollroom/internal/domain"
	handler "pollroom/internal/handler/http"
	"pollroom/internal/repository"
	"pollroom/internal/repository/mocks"
	"pollroom/internal/service"
)

func newAuthHandler(t *testing.T, mockUserRepo *mocks.UserRepository) *handler.AuthHandler {
	t.Helper()
	identity, err := service.NewIdentityService(mockUserRepo, "test-secret", 24)
	require.NoError(t, err)
	return handler.NewAuthHandler(identity)
}

func TestAuthHandler_Login_NewGuest(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	h := newAuthHandler(t, mockUserRepo)

	mockUserRepo.On("FindByUsername", mock.Anything, "alice").Return(nil, repository.ErrUserNotFound).Once()
	mockUserRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil).Once()

	c, w := testContext(t, "POST", "/api/auth/login", gin.H{"username": "alice"})

	h.Login(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	var resp handler.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.NotEmpty(t, resp.UserID)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthHandler_Login_MissingUsername(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	h := newAuthHandler(t, mockUserRepo)

	c, w := testContext(t, "POST", "/api/auth/login", gin.H{})

	h.Login(c)

	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	mockUserRepo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestAuthHandler_CheckUsername(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	h := newAuthHandler(t, mockUserRepo)

	mockUserRepo.On("FindByUsername", mock.Anything, "taken").
		Return(&domain.User{Username: "taken"}, nil).Once()

	c, w := testContext(t, "GET", "/api/auth/check-username?username=taken", nil)

	h.CheckUsername(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":false`)
}

func TestAuthHandler_CheckUsername_MissingParam(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	h := newAuthHandler(t, mockUserRepo)

	c, w := testContext(t, "GET", "/api/auth/check-username", nil)

	h.CheckUsername(c)

	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
}

func TestAuthHandler_GetUser(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	h := newAuthHandler(t, mockUserRepo)

	mockUserRepo.On("FindByUserID", mock.Anything, "user_abc").
		Return(&domain.User{UserID: "user_abc", Username: "alice"}, nil).Once()

	c, w := testContext(t, "GET", "/api/auth/users/user_abc", nil)
	c.Params = gin.Params{{Key: "userId", Value: "user_abc"}}

	h.GetUser(c)

	assert.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)
}
