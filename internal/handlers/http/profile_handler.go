package http

import (
	"context"
	"io"
	"net/http"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/services"
	"studymesh/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 5 << 20

type ProfileHandler struct {
	profiles *services.ProfileService
}

func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

func (h *ProfileHandler) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	api := router.Group("/api/v1", auth)
	{
		api.GET("/profiles/:id", h.Get)
		api.PUT("/profiles/me", h.Save)
		api.POST("/profiles/me/avatar", h.UploadAvatar)
		api.POST("/profiles/me/banner", h.UploadBanner)
		api.POST("/profiles/:id/follow", h.Follow)
		api.DELETE("/profiles/:id/follow", h.Unfollow)
	}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	view, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == domain.ErrParticipantUnknown {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ProfileHandler) Save(c *gin.Context) {
	var profile domain.Profile
	if err := c.BindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile.UserID = c.MustGet(middleware.ContextUserID).(domain.Identity)

	if err := h.profiles.Save(c.Request.Context(), &profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	h.upload(c, h.profiles.UploadAvatar)
}

func (h *ProfileHandler) UploadBanner(c *gin.Context) {
	h.upload(c, h.profiles.UploadBanner)
}

func (h *ProfileHandler) upload(c *gin.Context, store func(ctx context.Context, userID domain.Identity, data []byte, contentType string) (string, error)) {
	userID := c.MustGet(middleware.ContextUserID).(domain.Identity)

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty upload"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}

	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := store(c.Request.Context(), userID, data, contentType)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *ProfileHandler) Follow(c *gin.Context) {
	followerID := c.MustGet(middleware.ContextUserID).(domain.Identity)
	followeeID := domain.Identity(c.Param("id"))

	if err := h.profiles.Follow(c.Request.Context(), followerID, followeeID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProfileHandler) Unfollow(c *gin.Context) {
	followerID := c.MustGet(middleware.ContextUserID).(domain.Identity)
	followeeID := domain.Identity(c.Param("id"))

	if err := h.profiles.Unfollow(c.Request.Context(), followerID, followeeID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
