package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apidomain "github.com/cuongbtq/helpdesk-be/internal/api/domain"
	"github.com/cuongbtq/helpdesk-be/internal/api/dto"
	"github.com/cuongbtq/helpdesk-be/internal/api/model"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// writeEnqueueError maps a must-enqueue failure to the response of the
// request that triggered it
func writeEnqueueError(c *gin.Context, logger *slog.Logger, entity, id string, err error) {
	logger.Error("Failed to enqueue indexing job",
		slog.String("entity", entity),
		slog.String("id", id),
		slog.Any("error", err),
	)
	if errors.Is(err, domain.ErrBrokerUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Job broker unavailable",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to index " + entity,
	})
}

// CreateTicket handles POST /api/v1/tickets
// Creates a ticket, indexes it for search and announces it
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req dto.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	now := time.Now().UTC()
	ticket := model.Ticket{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Status:      apidomain.TicketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx := c.Request.Context()
	if err := h.store.CreateTicket(ctx, &ticket); err != nil {
		h.logger.Error("Failed to create ticket", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create ticket",
		})
		return
	}

	jobID, err := h.producer.IndexTicket(ctx, ticket.ID, ticket.Title, ticket.Description)
	if err != nil {
		writeEnqueueError(c, h.logger, "ticket", ticket.ID, err)
		return
	}

	h.producer.NotifyTicketCreated(ctx, ticket.ID, ticket.Title, ticket.Description)

	c.JSON(http.StatusCreated, dto.CreatedResponse[dto.TicketDTO]{
		Data: dto.TicketDTO{
			ID:          ticket.ID,
			UserID:      ticket.UserID,
			Title:       ticket.Title,
			Description: ticket.Description,
			Status:      ticket.Status,
			CreatedAt:   ticket.CreatedAt.Format(time.RFC3339),
		},
		IndexJobID: jobID,
	})
}

// DeleteTicket handles DELETE /api/v1/tickets/:ticket_id
// Soft deletes a ticket, which also drops it from search results
func (h *TicketHandler) DeleteTicket(c *gin.Context) {
	ticketID := c.Param("ticket_id")
	if _, err := uuid.Parse(ticketID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "ticket_id must be a valid UUID",
		})
		return
	}

	err := h.store.SoftDeleteTicket(c.Request.Context(), ticketID)
	if errors.Is(err, apidomain.ErrTicketNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete ticket", slog.String("ticket_id", ticketID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete ticket",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// CreateMessage handles POST /api/v1/tickets/:ticket_id/messages
// Adds a message to a ticket and indexes it for search
func (h *TicketHandler) CreateMessage(c *gin.Context) {
	ticketID := c.Param("ticket_id")
	if _, err := uuid.Parse(ticketID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "ticket_id must be a valid UUID",
		})
		return
	}

	var req dto.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetTicket(ctx, ticketID); err != nil {
		if errors.Is(err, apidomain.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		h.logger.Error("Failed to get ticket", slog.String("ticket_id", ticketID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get ticket",
		})
		return
	}

	now := time.Now().UTC()
	message := model.Message{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		SenderType: req.SenderType,
		Content:    req.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateMessage(ctx, &message); err != nil {
		h.logger.Error("Failed to create message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create message",
		})
		return
	}

	jobID, err := h.producer.IndexMessage(ctx, message.ID, message.Content)
	if err != nil {
		writeEnqueueError(c, h.logger, "message", message.ID, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreatedResponse[dto.MessageDTO]{
		Data: dto.MessageDTO{
			ID:         message.ID,
			TicketID:   message.TicketID,
			SenderType: message.SenderType,
			Content:    message.Content,
			CreatedAt:  message.CreatedAt.Format(time.RFC3339),
		},
		IndexJobID: jobID,
	})
}
