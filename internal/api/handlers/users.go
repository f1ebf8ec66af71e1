package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/presensi/internal/auth"
	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/internal/storage"
	"github.com/your-org/presensi/internal/vision"
	"github.com/your-org/presensi/pkg/dto"
)

const (
	avatarSize     = 256
	maxImageBytes  = 8 << 20
	errNoFaceInImg = "no face found in image"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateFace(ctx context.Context, id uuid.UUID, descriptor []float32, avatarKey, avatarURL string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type AvatarStore interface {
	UploadAvatar(ctx context.Context, key string, data []byte) (string, error)
	DeleteAvatar(ctx context.Context, key string) error
}

// FaceDescriber extracts the enrollment descriptor from an uploaded image.
type FaceDescriber interface {
	Describe(ctx context.Context, data []byte) ([]float32, error)
}

type UserHandler struct {
	users   UserStore
	avatars AvatarStore
	faces   FaceDescriber
}

func NewUserHandler(users UserStore, avatars AvatarStore, faces FaceDescriber) *UserHandler {
	return &UserHandler{users: users, avatars: avatars, faces: faces}
}

// enrolled is the outcome of processing an enrollment image.
type enrolled struct {
	descriptor []float32
	avatarKey  string
	avatarURL  string
}

// readImage reads the "image" multipart file.
func readImage(c *gin.Context) ([]byte, bool) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return nil, false
	}
	if len(data) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return nil, false
	}
	return data, true
}

// enroll extracts the descriptor and stores the avatar. It writes the error
// response itself and reports whether to continue.
func (h *UserHandler) enroll(c *gin.Context, id uuid.UUID, data []byte) (enrolled, bool) {
	ctx := c.Request.Context()

	img, err := vision.DecodeFrame(data, false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is not a supported picture"})
		return enrolled{}, false
	}

	descriptor, err := h.faces.Describe(ctx, data)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errNoFaceInImg})
			return enrolled{}, false
		}
		slog.Error("describe enrollment image", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face models unavailable"})
		return enrolled{}, false
	}

	thumb, err := vision.Thumbnail(img, avatarSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return enrolled{}, false
	}
	key := fmt.Sprintf("%s_%d.jpg", id, time.Now().UnixMilli())
	url, err := h.avatars.UploadAvatar(ctx, key, thumb)
	if err != nil {
		slog.Error("upload avatar", "error", err, "key", key)
		c.JSON(http.StatusBadGateway, gin.H{"error": "store avatar failed"})
		return enrolled{}, false
	}
	return enrolled{descriptor: descriptor, avatarKey: key, avatarURL: url}, true
}

func (h *UserHandler) dropAvatar(ctx context.Context, key string) {
	if err := h.avatars.DeleteAvatar(ctx, key); err != nil {
		slog.Warn("delete avatar", "error", err, "key", key)
	}
}

// Create enrolls a user from a multipart form with full_name, email,
// password and image.
func (h *UserHandler) Create(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("full_name"))
	email := strings.TrimSpace(c.PostForm("email"))
	if name == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name and email are required"})
		return
	}

	hash, err := auth.HashPassword(c.PostForm("password"))
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, ok := readImage(c)
	if !ok {
		return
	}

	u := &models.User{
		ID:           uuid.New(),
		FullName:     name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleStudent,
	}
	face, ok := h.enroll(c, u.ID, data)
	if !ok {
		return
	}
	u.Descriptor = face.descriptor
	u.AvatarKey = face.avatarKey
	u.AvatarURL = face.avatarURL

	if err := h.users.CreateUser(c.Request.Context(), u); err != nil {
		h.dropAvatar(c.Request.Context(), face.avatarKey)
		if errors.Is(err, storage.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("user enrolled", "id", u.ID, "email", u.Email)
	c.JSON(http.StatusCreated, dto.NewUserResponse(*u))
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, dto.NewUserResponse(u))
	}
	c.JSON(http.StatusOK, dto.UserListResponse{Users: resp, Total: len(resp)})
}

// lookup resolves the :id parameter to a user, writing the error response
// when it cannot.
func (h *UserHandler) lookup(c *gin.Context) (*models.User, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return nil, false
	}
	u, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return u, true
}

func (h *UserHandler) Get(c *gin.Context) {
	u, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewUserResponse(*u))
}

// UpdateFace re-enrolls a user's face from a new image.
func (h *UserHandler) UpdateFace(c *gin.Context) {
	u, ok := h.lookup(c)
	if !ok {
		return
	}
	data, ok := readImage(c)
	if !ok {
		return
	}
	face, ok := h.enroll(c, u.ID, data)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.users.UpdateFace(ctx, u.ID, face.descriptor, face.avatarKey, face.avatarURL); err != nil {
		h.dropAvatar(ctx, face.avatarKey)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if u.AvatarKey != "" {
		h.dropAvatar(ctx, u.AvatarKey)
	}

	u.Descriptor = face.descriptor
	u.AvatarKey = face.avatarKey
	u.AvatarURL = face.avatarURL
	c.JSON(http.StatusOK, dto.NewUserResponse(*u))
}

func (h *UserHandler) Delete(c *gin.Context) {
	u, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := h.users.DeleteUser(c.Request.Context(), u.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.dropAvatar(c.Request.Context(), u.AvatarKey)
	c.Status(http.StatusNoContent)
}

// Login checks an email and password and returns the profile.
func (h *UserHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	if err := auth.CheckPassword(hash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewUserResponse(*u))
}
