package http

import (
	"net/http"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/internal/core/services"
	"studymesh/internal/infrastructure/middleware"
	apperrors "studymesh/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RoomHandler exposes the coordinator's control surface and room records to
// the UI layer over HTTP.
type RoomHandler struct {
	coordinator ports.RoomCoordinator
	roomService *services.RoomService
}

func NewRoomHandler(coordinator ports.RoomCoordinator, roomService *services.RoomService) *RoomHandler {
	return &RoomHandler{
		coordinator: coordinator,
		roomService: roomService,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	api := router.Group("/api/v1", auth)
	{
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:id", h.GetRoom)
		api.DELETE("/rooms/:id", h.DeleteRoom)

		api.POST("/session/join", h.Join)
		api.POST("/session/leave", h.Leave)
		api.GET("/session", h.State)
		api.POST("/session/chat", h.SendChat)
		api.POST("/session/toggle/audio", h.ToggleAudio)
		api.POST("/session/toggle/video", h.ToggleVideo)
		api.POST("/session/toggle/screen", h.ToggleScreenShare)
	}
}

func respondError(c *gin.Context, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
		return
	}
	switch err {
	case domain.ErrRoomNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case domain.ErrNoActiveSession:
		c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
	case domain.ErrUnauthorized:
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,min=1,max=60"`
		Subject  string `json:"subject"`
		MaxSeats int    `json:"max_seats" binding:"min=0,max=100"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := c.MustGet(middleware.ContextUserID).(domain.Identity)
	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name, req.Subject, ownerID, req.MaxSeats)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	listings, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": listings})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	callerID := c.MustGet(middleware.ContextUserID).(domain.Identity)
	if err := h.roomService.DeleteRoom(c.Request.Context(), domain.RoomID(c.Param("id")), callerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) Join(c *gin.Context) {
	var req struct {
		RoomID string `json:"room_id" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coordinator.JoinRoom(c.Request.Context(), domain.RoomID(req.RoomID)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.snapshotBody())
}

func (h *RoomHandler) Leave(c *gin.Context) {
	if err := h.coordinator.LeaveRoom(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.snapshotBody())
}

func (h *RoomHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.snapshotBody())
}

func (h *RoomHandler) SendChat(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.coordinator.SendChatMessage(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *RoomHandler) ToggleAudio(c *gin.Context) {
	muted, err := h.coordinator.ToggleAudio(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h *RoomHandler) ToggleVideo(c *gin.Context) {
	videoOff, err := h.coordinator.ToggleVideo(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"video_off": videoOff})
}

func (h *RoomHandler) ToggleScreenShare(c *gin.Context) {
	sharing, err := h.coordinator.ToggleScreenShare(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"screen_sharing": sharing})
}

func (h *RoomHandler) snapshotBody() gin.H {
	snap := h.coordinator.Snapshot()
	return gin.H{
		"room_id":        snap.RoomID,
		"state":          snap.State.String(),
		"joining":        snap.Joining,
		"local":          snap.Local,
		"roster":         snap.Roster,
		"chat":           snap.Chat,
		"muted":          snap.Muted,
		"video_off":      snap.VideoOff,
		"screen_sharing": snap.ScreenSharing,
	}
}
