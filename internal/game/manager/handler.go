package manager

import (
	"errors"
	"io"
	"net/http"

	"ChipClash/internal/auth"
	"ChipClash/internal/game/engine"
	"ChipClash/internal/game/rules"
	"ChipClash/internal/game/strategy"
	"ChipClash/internal/game/table"
	"ChipClash/internal/middleware"
	"ChipClash/internal/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	mgr *GameManager
}

func NewHandler(mgr *GameManager) *Handler {
	return &Handler{mgr: mgr}
}

// Register mounts the room routes on a group that already runs the JWT
// middleware.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/rooms", middleware.RequireAdmin(), h.List)
	rg.GET("/rooms/:id", h.Get)
	rg.POST("/rooms/:id/actions/:kind", h.Act)
	rg.POST("/rooms/:id/teams/:team/:kind", middleware.RequireAdmin(), h.Admin)
}

// GET /rooms
func (h *Handler) List(c *gin.Context) {
	rooms, err := h.mgr.Rooms(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GET /rooms/:id
func (h *Handler) Get(c *gin.Context) {
	roomID, ok := h.authorize(c)
	if !ok {
		return
	}
	view, allowed, err := h.mgr.View(c.Request.Context(), roomID, c.GetString("team"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": view, "allowed": allowed})
}

// POST /rooms/:id/actions/:kind  body: {strategy | transfers | images, names}
func (h *Handler) Act(c *gin.Context) {
	roomID, ok := h.authorize(c)
	if !ok {
		return
	}
	team := c.GetString("team")
	if team == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "team token required"})
		return
	}
	kind, ok := teamEvents[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action " + c.Param("kind")})
		return
	}
	h.run(c, roomID, team, kind)
}

// POST /rooms/:id/teams/:team/{override|autofill}
func (h *Handler) Admin(c *gin.Context) {
	kind, ok := adminEvents[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action " + c.Param("kind")})
		return
	}
	h.run(c, c.Param("id"), c.Param("team"), kind)
}

func (h *Handler) run(c *gin.Context, roomID, teamID string, kind table.ActionKind) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := decodeIntent(kind, body)
	if err != nil {
		abort(c, err)
		return
	}
	res, err := h.mgr.Do(c.Request.Context(), roomID, teamID, in)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// authorize 队伍只能访问自己的房间；管理员不受限
func (h *Handler) authorize(c *gin.Context) (string, bool) {
	roomID := c.Param("id")
	if c.GetString("role") == auth.RoleAdmin {
		return roomID, true
	}
	if c.GetString("room") != roomID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your room"})
		return "", false
	}
	return roomID, true
}

func abort(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadPayload),
		errors.Is(err, strategy.ErrInvalidStrategy),
		errors.Is(err, rules.ErrInvalidSteal),
		errors.Is(err, rules.ErrAdviceExhausted),
		errors.Is(err, engine.ErrUnknownIntent),
		errors.Is(err, engine.ErrNotFinished),
		errors.Is(err, engine.ErrNoWinner):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTooManyRetries):
		return http.StatusConflict
	case errors.Is(err, engine.ErrAdvisor):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
