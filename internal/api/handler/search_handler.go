package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/helpdesk-be/internal/search"
)

// Search handles GET /api/v1/search?q=&limit=
// A missing, non-numeric or non-positive limit falls back to the default.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = 0
	}

	results, err := h.search.Search(c.Request.Context(), query, limit)
	if errors.Is(err, search.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}
	if err != nil {
		h.logger.Error("Search failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to search",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}
