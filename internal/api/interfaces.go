// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/models"
)

// SessionHandler handles the upload form of one browser session
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSelectFile(c echo.Context) error
	HandleSubmit(c echo.Context) error
}

// SocketHandler pushes view updates over a websocket
type SocketHandler interface {
	HandleSessionSocket(c echo.Context) error
}

// HistoryHandler exposes finished runs
type HistoryHandler interface {
	HandleRecentRuns(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// RunHistory is the read side of the run store.
// This allows mocking in tests
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]*models.Run, error)
}
