package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/pkg/logger"
	"github.com/suteetoe/authgate/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RoleHandler exposes tenant-scoped role management. Role rows are stamped
// with the resolved tenant by the isolation plugin on insert; names are
// unique per tenant.
type RoleHandler struct {
	db *gorm.DB
}

// NewRoleHandler wires the handler's collaborators
func NewRoleHandler(db *gorm.DB) *RoleHandler {
	return &RoleHandler{db: db}
}

// Create adds a role to the resolved tenant
func (h *RoleHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse role creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"name is required"}})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	// TenantID is left empty here; the scope plugin stamps it from the
	// request context.
	role := model.Role{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.db.WithContext(c.Request().Context()).Create(&role).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return c.JSON(http.StatusConflict, echo.Map{"errors": []string{"role already exists"}})
		}
		log.Error("failed to create role", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"role creation failed"}})
	}

	log.Info("role created",
		zap.String("role_id", role.ID),
		zap.String("name", role.Name))

	return c.JSON(http.StatusCreated, role)
}

// List returns the roles of the resolved tenant
func (h *RoleHandler) List(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	var roles []model.Role
	if err := h.db.WithContext(c.Request().Context()).Order("created_at").Find(&roles).Error; err != nil {
		log.Error("failed to list roles", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"listing roles failed"}})
	}

	return c.JSON(http.StatusOK, echo.Map{"roles": roles})
}

// Grant assigns a role to a user. Both rows must belong to the resolved
// tenant; a cross-tenant id is reported as not found.
func (h *RoleHandler) Grant(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		UserID string `json:"user_id"`
		RoleID string `json:"role_id"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse role grant request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}
	if req.UserID == "" || req.RoleID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"user_id and role_id are required"}})
	}

	ctx := c.Request().Context()

	defer prometheus.TrackDBOperation("insert")(time.Now())

	var user model.User
	if err := h.db.WithContext(ctx).Where("id = ?", req.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"user not found"}})
		}
		log.Error("failed to load user for role grant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"role grant failed"}})
	}

	var role model.Role
	if err := h.db.WithContext(ctx).Where("id = ?", req.RoleID).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"role not found"}})
		}
		log.Error("failed to load role for role grant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"role grant failed"}})
	}

	grant := model.UserRole{UserID: user.ID, RoleID: role.ID}
	if err := h.db.WithContext(ctx).Create(&grant).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return c.JSON(http.StatusConflict, echo.Map{"errors": []string{"role already granted"}})
		}
		log.Error("failed to grant role", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"role grant failed"}})
	}

	log.Info("role granted",
		zap.String("user_id", user.ID),
		zap.String("role_id", role.ID))

	return c.JSON(http.StatusCreated, echo.Map{"message": "role granted"})
}
