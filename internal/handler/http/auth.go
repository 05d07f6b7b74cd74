package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pollroom/internal/service"
)

// AuthHandler serves the guest identity endpoints.
type AuthHandler struct {
	identity *service.IdentityService
}

// NewAuthHandler creates an AuthHandler instance.
func NewAuthHandler(identity *service.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// LoginRequest is the body for the guest login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=1,max=50"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Login handles guest login: an existing username logs back in, a new
// one registers on the spot.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Login: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: username required"})
		return
	}

	user, token, err := h.identity.RegisterOrLogin(c.Request.Context(), req.Username)
	if err != nil {
		logCtx := logrus.WithField("username", req.Username)
		if errors.Is(err, service.ErrUsernameTaken) {
			logCtx.WithError(err).Warn("Handler.Login: Username taken")
		} else {
			logCtx.WithError(err).Error("Handler.Login: Internal error during login")
		}
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("user_id", user.UserID).Info("Handler.Login: Guest logged in")
	c.JSON(http.StatusOK, LoginResponse{
		Message:  "Login successful",
		UserID:   user.UserID,
		Username: user.Username,
		Token:    token,
	})
}

// CheckUsername reports whether a username is still free.
func (h *AuthHandler) CheckUsername(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		ErrorResponse(c, http.StatusBadRequest, "username query parameter is required")
		return
	}

	available, err := h.identity.IsUsernameAvailable(c.Request.Context(), username)
	if err != nil {
		logrus.WithError(err).WithField("username", username).Error("Handler.CheckUsername: Availability check failed")
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"username": username, "available": available})
}

// GetUser returns a guest profile by its opaque id.
func (h *AuthHandler) GetUser(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		ErrorResponse(c, http.StatusBadRequest, "userId path parameter is required")
		return
	}

	user, err := h.identity.GetUser(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.GetUser: Lookup failed")
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"user_id":     user.UserID,
		"username":    user.Username,
		"last_active": user.LastActive,
	})
}
