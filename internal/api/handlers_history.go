// handlers_history.go - Run history handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/models"
)

const (
	defaultRecentRuns = 20
	maxRecentRuns     = 100
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	history RunHistory
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history RunHistory) HistoryHandler {
	return &HistoryHandlerImpl{history: history}
}

// HandleRecentRuns returns the most recent runs, newest first
func (h *HistoryHandlerImpl) HandleRecentRuns(c echo.Context) error {
	limit := defaultRecentRuns
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxRecentRuns)
	}

	if h.history == nil {
		return c.JSON(http.StatusOK, []*models.Run{})
	}

	runs, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to load run history", err)
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}
