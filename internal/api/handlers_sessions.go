// handlers_sessions.go - Upload form handlers, one controller per browser session
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/session"
	"github.com/sheetscrape/console/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions *session.Manager
	store    storage.Store
	baseCtx  context.Context
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler. Runs started through it live on baseCtx,
// not on the request that started them.
func NewSessionHandler(baseCtx context.Context, sessions *session.Manager, store storage.Store, logger *zap.Logger) SessionHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandlerImpl{
		sessions: sessions,
		store:    store,
		baseCtx:  baseCtx,
		logger:   logger,
	}
	sessions.OnRemove(h.onSessionRemoved)
	return h
}

// HandleCreateSession starts a new upload form
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	state, err := h.sessions.Create()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, state.Controller.View())
}

// HandleGetSession returns the current view of a session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	state, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state.Controller.View())
}

// HandleGetSessionMsgpack returns the current view encoded as msgpack
func (h *SessionHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	state, err := h.lookup(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(state.Controller.View())
	if err != nil {
		return NewInternalError("failed to encode view", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleDeleteSession drops a session and its staged file
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.sessions.Delete(id); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSelectFile stages the picked file locally and hands it to the controller.
// Validation failures are not HTTP errors: the returned view carries the message.
func (h *SessionHandlerImpl) HandleSelectFile(c echo.Context) error {
	state, err := h.lookup(c)
	if err != nil {
		return err
	}
	unlock := state.LockSelection()
	defer unlock()

	ctrl := state.Controller
	if ctrl.Busy() {
		return controller.ErrBusy
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(fh.Filename, models.FileKindStaged, src)
	if err != nil {
		return NewInternalError("failed to stage file", err)
	}

	store := h.store
	selected := models.NewSelectedFile(info.Name, info.Size, func() (io.ReadCloser, error) {
		return store.Open(info.ID)
	})

	switch err := ctrl.SelectFile(selected); {
	case errors.Is(err, controller.ErrBusy):
		h.discard(info.ID)
		return err
	case errors.Is(err, controller.ErrInvalidFormat):
		h.discard(info.ID)
		h.replaceStaged(state.ID, "")
		h.logger.Debug("rejected file", zap.String("session", shortID(state.ID)), zap.String("file", fh.Filename))
	case err != nil:
		h.discard(info.ID)
		return NewInternalError("failed to select file", err)
	default:
		h.replaceStaged(state.ID, info.ID)
	}

	return c.JSON(http.StatusOK, ctrl.View())
}

// HandleSubmit starts the upload-and-scrape sequence and returns without waiting for it
func (h *SessionHandlerImpl) HandleSubmit(c echo.Context) error {
	state, err := h.lookup(c)
	if err != nil {
		return err
	}
	ctrl := state.Controller

	done, err := ctrl.Start(h.baseCtx)
	switch {
	case errors.Is(err, controller.ErrBusy):
		return err
	case errors.Is(err, controller.ErrNoFile):
		return c.JSON(http.StatusOK, ctrl.View())
	case err != nil:
		return NewInternalError("failed to start run", err)
	}

	go func() {
		if err := <-done; err != nil {
			h.logger.Debug("run failed", zap.String("session", shortID(state.ID)), zap.Error(err))
		}
	}()
	return c.JSON(http.StatusAccepted, ctrl.View())
}

func (h *SessionHandlerImpl) lookup(c echo.Context) (*session.State, error) {
	return lookupSession(c, h.sessions)
}

// replaceStaged records fileID as the session's staged file and removes the previous one.
func (h *SessionHandlerImpl) replaceStaged(sessionID, fileID string) {
	prev, err := h.sessions.SwapStagedFile(sessionID, fileID)
	if err != nil {
		return
	}
	if prev != "" && prev != fileID {
		h.discard(prev)
	}
}

// onSessionRemoved deletes the staged file of a session that was deleted or cleaned up.
func (h *SessionHandlerImpl) onSessionRemoved(state *session.State) {
	if state.StagedFileID != "" {
		h.discard(state.StagedFileID)
	}
}

func (h *SessionHandlerImpl) discard(fileID string) {
	if err := h.store.Delete(fileID); err != nil {
		h.logger.Warn("failed to delete staged file", zap.String("file", fileID), zap.Error(err))
	}
}

func lookupSession(c echo.Context, sessions *session.Manager) (*session.State, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	state, ok := sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	sessions.TouchSession(id)
	return state, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
