package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/boards"
	"prism-board/domain"
	"prism-board/identity"
	"prism-board/persistence"
)

const userKey = "user"

var errInvalidBody = errors.New("invalid body")

type handler struct {
	provider *identity.Provider
	sessions *Sessions
	logger   *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, provider *identity.Provider, sessions *Sessions, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handler{provider: provider, sessions: sessions, logger: logger}

	e.POST("/api/session", h.signIn)
	e.DELETE("/api/session", h.signOut)
	e.GET("/api/boards", h.listBoards)
	e.POST("/api/boards", h.createBoard)
	e.PUT("/api/boards/current", h.switchBoard)
	e.DELETE("/api/boards/:id", h.deleteBoard)
	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/:id", h.editTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.POST("/api/tasks/:id/move", h.moveTask)
	e.GET("/healthz", healthz)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handler) signIn(c echo.Context) error {
	ctx := c.Request().Context()
	token, err := identity.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return h.fail(c, nil, err)
	}
	var id identity.Identity
	if c.QueryParam("provider") == identity.MethodFederated {
		id, err = h.provider.SignInWithFederatedProvider(ctx, token)
	} else {
		id, err = h.provider.SignIn(ctx, identity.Credentials{Token: token})
	}
	if err != nil {
		return h.fail(c, nil, err)
	}
	c.Set(userKey, id.UserID)

	store, ok := h.sessions.Store(id.UserID)
	if !ok {
		return h.fail(c, nil, fmt.Errorf("%w: board store unavailable", persistence.ErrStore))
	}
	return c.JSON(http.StatusOK, sessionResponse{Identity: id, boardsResponse: newBoardsResponse(store)})
}

func (h *handler) signOut(c echo.Context) error {
	id, err := h.provider.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return h.fail(c, nil, err)
	}
	c.Set(userKey, id.UserID)
	h.provider.SignOut(id.UserID)
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) listBoards(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, newBoardsResponse(store))
}

func (h *handler) createBoard(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	var req createBoardRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, store, err)
	}
	b, err := store.CreateBoard(c.Request().Context(), req.Title)
	if err != nil {
		return h.fail(c, store, err)
	}
	return c.JSON(http.StatusCreated, newBoardView(b))
}

func (h *handler) switchBoard(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	var req switchBoardRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, store, err)
	}
	if err := store.SwitchBoard(c.Request().Context(), req.BoardID); err != nil {
		return h.fail(c, store, err)
	}
	return c.JSON(http.StatusOK, newBoardsResponse(store))
}

func (h *handler) deleteBoard(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	if err := store.DeleteBoard(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, store, err)
	}
	return c.JSON(http.StatusOK, newBoardsResponse(store))
}

func (h *handler) createTask(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	var req createTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, store, err)
	}
	task, err := store.AddTask(req.ColumnID, req.Content)
	if err != nil {
		return h.fail(c, store, err)
	}
	return h.taskResult(c, store, http.StatusCreated, task)
}

func (h *handler) editTask(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	var req editTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, store, err)
	}
	task, err := store.EditTask(c.Param("id"), req.Content)
	if err != nil {
		return h.fail(c, store, err)
	}
	return h.taskResult(c, store, http.StatusOK, task)
}

func (h *handler) deleteTask(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	if err := store.DeleteTask(c.Param("id")); err != nil {
		return h.fail(c, store, err)
	}
	return h.currentBoard(c, store)
}

func (h *handler) moveTask(c echo.Context) error {
	store, err := h.store(c)
	if err != nil {
		return h.fail(c, nil, err)
	}
	var req moveTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, store, err)
	}
	taskID := c.Param("id")

	if req.OverID != "" {
		if _, err := store.DropTask(domain.Drop{TaskID: taskID, OverID: req.OverID}); err != nil {
			return h.fail(c, store, err)
		}
		return h.currentBoard(c, store)
	}

	if req.ColumnID == "" || req.Index == nil {
		return h.fail(c, store, fmt.Errorf("%w: overId or columnId and index required", errInvalidBody))
	}
	b, err := store.MoveTask(taskID, req.ColumnID, *req.Index)
	if err != nil {
		return h.fail(c, store, err)
	}
	return c.JSON(http.StatusOK, newBoardView(b))
}

// store resolves the caller's board store from the Authorization header.
func (h *handler) store(c echo.Context) (*boards.Store, error) {
	id, err := h.provider.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	c.Set(userKey, id.UserID)
	store, ok := h.sessions.Store(id.UserID)
	if !ok {
		return nil, fmt.Errorf("%w: no board session for %s", identity.ErrAuth, id.UserID)
	}
	return store, nil
}

func (h *handler) taskResult(c echo.Context, store *boards.Store, status int, task domain.Task) error {
	b, ok := store.Current()
	if !ok {
		return h.fail(c, store, boards.ErrNoCurrentBoard)
	}
	return c.JSON(status, taskResponse{Task: task, Board: newBoardView(b)})
}

func (h *handler) currentBoard(c echo.Context, store *boards.Store) error {
	b, ok := store.Current()
	if !ok {
		return h.fail(c, store, boards.ErrNoCurrentBoard)
	}
	return c.JSON(http.StatusOK, newBoardView(b))
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return nil
}

// fail maps err to a status code and writes it. Rejected edits carry the
// unchanged current board so the client can roll back.
func (h *handler) fail(c echo.Context, store *boards.Store, err error) error {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusUnprocessableEntity && store != nil {
		if b, ok := store.Current(); ok {
			v := newBoardView(b)
			resp.Board = &v
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.WithField("route", c.Path()).WithError(err).Error("request failed")
	}
	return c.JSON(status, resp)
}

func statusFor(err error) int {
	var violations domain.Violations
	switch {
	case errors.Is(err, identity.ErrAuth), errors.Is(err, boards.ErrNotInitialized):
		return http.StatusUnauthorized
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrValidationRejected),
		errors.Is(err, domain.ErrInvalidMove),
		errors.As(err, &violations):
		return http.StatusUnprocessableEntity
	case errors.Is(err, boards.ErrBoardNotFound),
		errors.Is(err, boards.ErrTaskNotFound),
		errors.Is(err, boards.ErrColumnNotFound),
		errors.Is(err, boards.ErrNoCurrentBoard):
		return http.StatusNotFound
	case errors.Is(err, persistence.ErrStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
