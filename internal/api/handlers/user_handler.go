package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/swiftcab/dispatch/internal/api/dto"
	"github.com/swiftcab/dispatch/internal/domain/user"
	"github.com/swiftcab/dispatch/pkg/logger"
)

// CreateUser handles POST /v1/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	u := &user.User{
		ID:          id,
		FullName:    req.FullName,
		Email:       req.Email,
		AccountType: user.AccountType(*req.AccountType),
		CreatedAt:   time.Now(),
	}

	if err := h.Users.Create(c.Request.Context(), u); err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("User created",
		logger.String("user_id", u.ID),
		logger.String("account_type", u.AccountType.String()),
	)
	c.JSON(http.StatusCreated, u)
}

// GetUser handles GET /v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.Users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// SaveUserLocation handles PUT /v1/users/:id/locations
func (h *Handlers) SaveUserLocation(c *gin.Context) {
	var req dto.SaveLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	err := h.Users.SaveLocation(c.Request.Context(), c.Param("id"),
		user.SavedLocationType(req.Type), req.Address)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
