// Package httpapi exposes the room engine to browsers: a small REST surface
// plus a WebSocket stream of room snapshots.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"
	"estimo/infrastructure/wire"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	log    *slog.Logger
	engine contract.RoomEngine
	// pingInterval keeps idle WebSocket connections alive.
	pingInterval time.Duration
}

func NewHandler(log *slog.Logger, engine contract.RoomEngine) *Handler {
	return &Handler{log: log, engine: engine, pingInterval: 30 * time.Second}
}

// NewRouter wires every route on a fresh gin engine.
func NewRouter(log *slog.Logger, engine contract.RoomEngine, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	NewHandler(log, engine).Register(r)
	return r
}

func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api/rooms")
	api.POST("", h.createRoom)
	api.GET("/:id", h.getRoom)
	api.POST("/:id/participants", h.join)
	api.DELETE("/:id/participants/:name", h.removePlayer)
	api.PUT("/:id/participants/:name/vote", h.vote)
	api.POST("/:id/reveal", h.reveal)
	api.POST("/:id/reset", h.reset)
	api.GET("/:id/summary", h.summary)
	api.GET("/:id/ws", h.stream)
}

type createRoomRequest struct {
	Host *wire.Participant `json:"host"`
}

type voteRequest struct {
	Vote string `json:"vote"`
}

// createRoom allocates a room id. With a host in the body the room is
// created right away, otherwise it comes to life on the first join.
func (h *Handler) createRoom(c *gin.Context) {
	var req createRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	id, err := domain.NewRoomID()
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Host != nil {
		host := req.Host.ToParticipant()
		host.IsHost = true
		if err := h.engine.Join(c.Request.Context(), id, host); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, wire.CreateRoomResponse{RoomID: string(id)})
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.engine.GetRoom(c.Request.Context(), roomID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromRoom(room))
}

func (h *Handler) join(c *gin.Context) {
	var p wire.Participant
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.Join(c.Request.Context(), roomID(c), p.ToParticipant()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removePlayer(c *gin.Context) {
	h.done(c, h.engine.RemovePlayer(c.Request.Context(), roomID(c), c.Param("name")))
}

func (h *Handler) vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vote, err := domain.ParseVote(req.Vote)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.done(c, h.engine.Vote(c.Request.Context(), roomID(c), c.Param("name"), vote))
}

func (h *Handler) reveal(c *gin.Context) {
	h.done(c, h.engine.RevealVotes(c.Request.Context(), roomID(c)))
}

func (h *Handler) reset(c *gin.Context) {
	h.done(c, h.engine.StartNewRound(c.Request.Context(), roomID(c)))
}

// summary reports round statistics. Numeric figures stay zero until the
// votes are revealed so they cannot leak individual estimates.
func (h *Handler) summary(c *gin.Context) {
	room, err := h.engine.GetRoom(c.Request.Context(), roomID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	summary := domain.Summarize(room)
	if !room.VotesRevealed {
		summary = domain.Summary{
			Participants: summary.Participants,
			Voters:       summary.Voters,
			AllVoted:     summary.AllVoted,
		}
	}
	c.JSON(http.StatusOK, wire.FromSummary(summary))
}

func (h *Handler) done(c *gin.Context, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "room_id", c.Param("id"), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrVoteThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrTransactionFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func roomID(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("id"))
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
