package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/authgate/internal/auth"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/jwtutil"
	"github.com/suteetoe/authgate/pkg/logger"
	"github.com/suteetoe/authgate/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserHandler exposes tenant-scoped principal operations. All reads and
// writes here go through the isolation plugin: the request context carries
// the resolved tenant, so a row from another tenant is simply not found.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler wires the handler's collaborators
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// GetProfile returns the authenticated principal's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := c.Get(tenancy.ClaimsContextKey).(*jwtutil.Claims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"errors": []string{"authentication required"}})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if err := h.db.WithContext(c.Request().Context()).Where("id = ?", claims.Subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"user not found"}})
		}
		log.Error("failed to load profile", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"profile lookup failed"}})
	}

	return c.JSON(http.StatusOK, user)
}

// UpdateProfile changes the authenticated principal's name fields
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := c.Get(tenancy.ClaimsContextKey).(*jwtutil.Claims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"errors": []string{"authentication required"}})
	}

	var req struct {
		FirstName *string `json:"first_name,omitempty"`
		LastName  *string `json:"last_name,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse profile update", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"nothing to update"}})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	result := h.db.WithContext(c.Request().Context()).
		Model(&model.User{}).
		Where("id = ?", claims.Subject).
		Updates(updates)
	if result.Error != nil {
		log.Error("failed to update profile", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"profile update failed"}})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"user not found"}})
	}

	log.Info("profile updated", zap.String("user_id", claims.Subject))
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated"})
}

// ChangePassword verifies the current password before storing the new hash
func (h *UserHandler) ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := c.Get(tenancy.ClaimsContextKey).(*jwtutil.Claims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"errors": []string{"authentication required"}})
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse password change", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"current and new password are required"}})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	ctx := c.Request().Context()
	var user model.User
	if err := h.db.WithContext(ctx).Where("id = ?", claims.Subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"user not found"}})
		}
		log.Error("failed to load user for password change", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"password change failed"}})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"errors": []string{"invalid credentials"}})
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		log.Error("failed to hash new password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"password change failed"}})
	}

	if err := h.db.WithContext(ctx).Model(&user).Update("password_hash", hash).Error; err != nil {
		log.Error("failed to store new password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"password change failed"}})
	}

	log.Info("password changed", zap.String("user_id", claims.Subject))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// List returns the principals of the resolved tenant
func (h *UserHandler) List(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	var users []model.User
	if err := h.db.WithContext(c.Request().Context()).Order("created_at").Find(&users).Error; err != nil {
		log.Error("failed to list users", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"listing users failed"}})
	}

	return c.JSON(http.StatusOK, echo.Map{"users": users})
}
