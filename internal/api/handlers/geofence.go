package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/storage"
	"github.com/your-org/presensi/pkg/dto"
)

type GeofenceStore interface {
	GetGeofence(ctx context.Context) (models.GeofenceConfig, error)
	SaveGeofence(ctx context.Context, cfg models.GeofenceConfig) (models.GeofenceConfig, error)
}

type GeofenceHandler struct {
	store GeofenceStore
}

func NewGeofenceHandler(store GeofenceStore) *GeofenceHandler {
	return &GeofenceHandler{store: store}
}

func (h *GeofenceHandler) Get(c *gin.Context) {
	cfg, err := h.store.GetGeofence(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "geofence not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewGeofenceResponse(cfg))
}

func (h *GeofenceHandler) Put(c *gin.Context) {
	var req dto.GeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := models.NewGeofenceConfig(*req.Latitude, *req.Longitude, req.RadiusMeters)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.store.SaveGeofence(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewGeofenceResponse(saved))
}
