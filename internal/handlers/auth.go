package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"fleetwatch/pkg/auth"
	"fleetwatch/pkg/database"
	"fleetwatch/pkg/models"
)

// Register creates a new dashboard user and returns a signed token
func (h *Handlers) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		internalError(c)
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), req.Email, hash, req.FirstName, req.LastName)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Email already registered"})
			return
		}
		h.logger.WithError(err).WithField("email", req.Email).Error("Failed to create user")
		internalError(c)
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

// Login authenticates a user by email and password
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
			return
		}
		h.logger.WithError(err).Error("Failed to look up user")
		internalError(c)
		return
	}

	if !user.IsActive || !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handlers) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateJWT(user.ID, user.Email, user.Role, h.jwtSecret)
	if err != nil {
		h.logger.WithError(err).Error("Failed to sign token")
		internalError(c)
		return
	}

	c.JSON(status, models.AuthResponse{
		Token:     token,
		User:      *user,
		ExpiresAt: time.Now().Add(auth.TokenTTL),
	})
}
