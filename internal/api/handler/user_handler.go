package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apidomain "github.com/cuongbtq/helpdesk-be/internal/api/domain"
	"github.com/cuongbtq/helpdesk-be/internal/api/dto"
	"github.com/cuongbtq/helpdesk-be/internal/api/model"
)

func toUserDTO(user *model.User) dto.UserDTO {
	d := dto.UserDTO{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
	if user.Country != nil {
		d.Country = *user.Country
	}
	return d
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("Failed to hash password", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register user",
		})
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx := c.Request.Context()
	if err := h.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, apidomain.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
			return
		}
		h.logger.Error("Failed to create user", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register user",
		})
		return
	}

	h.producer.EnrichUserLocation(ctx, user.ID, c.ClientIP())

	c.JSON(http.StatusCreated, gin.H{
		"data":    toUserDTO(&user),
		"message": "User registered successfully",
	})
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No email and/or password provided",
		})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByEmail(ctx, strings.ToLower(req.Email))
	if err != nil && !errors.Is(err, apidomain.ErrUserNotFound) {
		h.logger.Error("Failed to get user", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to log in",
		})
		return
	}

	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Invalid login credentials",
		})
		return
	}

	h.producer.EnrichUserLocation(ctx, user.ID, c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"data":    toUserDTO(user),
		"message": "Login successful",
	})
}
