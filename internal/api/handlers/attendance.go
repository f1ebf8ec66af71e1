package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/storage"
	"github.com/your-org/presensi/pkg/dto"
)

type AttendanceStore interface {
	ListCheckIns(ctx context.Context, f storage.CheckInFilter) ([]models.CheckInRecord, int, error)
	GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInRecord, error)
	DayStatus(ctx context.Context, personID uuid.UUID, date string) (models.DayStatus, error)
}

type PhotoSource interface {
	GetPhoto(ctx context.Context, key string) ([]byte, error)
}

type AttendanceHandler struct {
	store  AttendanceStore
	photos PhotoSource
	loc    *time.Location
	now    func() time.Time
}

// NewAttendanceHandler builds the handler; "today" is taken in loc.
func NewAttendanceHandler(store AttendanceStore, photos PhotoSource, loc *time.Location) *AttendanceHandler {
	return &AttendanceHandler{store: store, photos: photos, loc: loc, now: time.Now}
}

func (h *AttendanceHandler) List(c *gin.Context) {
	var q dto.CheckInQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := storage.CheckInFilter{Date: q.Date, PersonID: q.PersonID, Limit: q.Limit, Offset: q.Offset}
	if q.Label != "" {
		label, err := models.ParseSessionLabel(q.Label)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Label = label
	}

	records, total, err := h.store.ListCheckIns(c.Request.Context(), f)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRow) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CheckInResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, dto.NewCheckInResponse(rec))
	}
	c.JSON(http.StatusOK, dto.CheckInListResponse{CheckIns: resp, Total: total})
}

// Today reports which sessions the user has recorded today.
func (h *AttendanceHandler) Today(c *gin.Context) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	date := h.now().In(h.loc).Format(models.DateLayout)
	status, err := h.store.DayStatus(c.Request.Context(), id, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewDayStatusResponse(status))
}

// Photo streams the attendance photo of a record.
func (h *AttendanceHandler) Photo(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid check-in id"})
		return
	}

	rec, err := h.store.GetCheckIn(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "check-in not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec.PhotoKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	data, err := h.photos.GetPhoto(c.Request.Context(), rec.PhotoKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
