package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presensi/internal/models"
)

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	HasFace   bool      `json:"has_face"`
	CreatedAt string    `json:"created_at"`
}

func NewUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
		HasFace:   len(u.Descriptor) > 0,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type GeofenceRequest struct {
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	RadiusMeters float64  `json:"radius_meters" binding:"required"`
}

type GeofenceResponse struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

func NewGeofenceResponse(g models.GeofenceConfig) GeofenceResponse {
	resp := GeofenceResponse{
		Latitude:     g.Center.Lat,
		Longitude:    g.Center.Lon,
		RadiusMeters: g.RadiusMeters,
	}
	if !g.UpdatedAt.IsZero() {
		resp.UpdatedAt = g.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
