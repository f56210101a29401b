package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/logger"
	"github.com/suteetoe/authgate/prometheus"
	"go.uber.org/zap"
)

// TenantHandler exposes administrative tenant management. These endpoints
// intentionally bypass tenant resolution: creating the first tenant must work
// without one.
type TenantHandler struct {
	registry *tenancy.Registry
}

// NewTenantHandler wires the handler's collaborators
func NewTenantHandler(registry *tenancy.Registry) *TenantHandler {
	return &TenantHandler{registry: registry}
}

// Create handles tenant creation
func (h *TenantHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	var req struct {
		Identifier string `json:"identifier"`
		Name       string `json:"name"`
		Settings   string `json:"settings,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse tenant creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tenant, err := h.registry.Create(c.Request().Context(), req.Identifier, req.Name, req.Settings)
	if err != nil {
		switch {
		case errors.Is(err, tenancy.ErrInvalidIdentifier):
			return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{err.Error()}})
		case errors.Is(err, tenancy.ErrIdentifierTaken):
			return c.JSON(http.StatusConflict, echo.Map{"errors": []string{"identifier already in use"}})
		default:
			log.Error("failed to create tenant", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"tenant creation failed"}})
		}
	}

	log.Info("tenant created",
		zap.String("id", tenant.ID),
		zap.String("identifier", tenant.Identifier))

	return c.JSON(http.StatusCreated, tenant)
}

// List returns all tenants
func (h *TenantHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	defer prometheus.TrackDBOperation("query")(time.Now())

	tenants, err := h.registry.List(c.Request().Context())
	if err != nil {
		log.Error("failed to list tenants", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"listing tenants failed"}})
	}

	return c.JSON(http.StatusOK, echo.Map{"tenants": tenants})
}

// Get retrieves a tenant by its slug
func (h *TenantHandler) Get(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("access")

	defer prometheus.TrackDBOperation("query")(time.Now())

	tenant, err := h.registry.GetByIdentifier(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"tenant not found"}})
		}
		log.Error("failed to get tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"getting tenant failed"}})
	}

	return c.JSON(http.StatusOK, tenant)
}

// Update changes a tenant's display name or settings
func (h *TenantHandler) Update(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("update")

	var req struct {
		Name     string `json:"name,omitempty"`
		Settings string `json:"settings,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse tenant update request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	tenant, err := h.resolveByIdentifier(c)
	if err != nil {
		return writeTenantError(c, log, err)
	}

	updated, err := h.registry.Update(c.Request().Context(), tenant.ID, req.Name, req.Settings)
	if err != nil {
		return writeTenantError(c, log, err)
	}

	log.Info("tenant updated", zap.String("id", updated.ID))
	return c.JSON(http.StatusOK, updated)
}

// Activate re-enables a tenant
func (h *TenantHandler) Activate(c echo.Context) error {
	return h.setActive(c, true, "activate")
}

// Deactivate disables a tenant; its principals can no longer log in
func (h *TenantHandler) Deactivate(c echo.Context) error {
	return h.setActive(c, false, "deactivate")
}

func (h *TenantHandler) setActive(c echo.Context, active bool, operation string) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation(operation)

	defer prometheus.TrackDBOperation("update")(time.Now())

	tenant, err := h.resolveByIdentifier(c)
	if err != nil {
		return writeTenantError(c, log, err)
	}

	if err := h.registry.SetActive(c.Request().Context(), tenant.ID, active); err != nil {
		return writeTenantError(c, log, err)
	}

	log.Info("tenant active flag changed",
		zap.String("id", tenant.ID),
		zap.Bool("active", active))

	return c.JSON(http.StatusOK, echo.Map{"message": "tenant updated"})
}

// Delete removes a tenant. Deletion is refused while users still reference it.
func (h *TenantHandler) Delete(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("delete")

	defer prometheus.TrackDBOperation("delete")(time.Now())

	tenant, err := h.resolveByIdentifier(c)
	if err != nil {
		return writeTenantError(c, log, err)
	}

	if err := h.registry.Delete(c.Request().Context(), tenant.ID); err != nil {
		if errors.Is(err, tenancy.ErrTenantHasUsers) {
			return c.JSON(http.StatusConflict, echo.Map{
				"errors": []string{"tenant still has users; deactivate it instead"},
			})
		}
		return writeTenantError(c, log, err)
	}

	log.Info("tenant deleted", zap.String("id", tenant.ID))
	return c.JSON(http.StatusOK, echo.Map{"message": "tenant deleted"})
}

func (h *TenantHandler) resolveByIdentifier(c echo.Context) (*model.Tenant, error) {
	return h.registry.GetByIdentifier(c.Request().Context(), c.Param("identifier"))
}

func writeTenantError(c echo.Context, log *zap.Logger, err error) error {
	if errors.Is(err, tenancy.ErrTenantNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"errors": []string{"tenant not found"}})
	}
	log.Error("tenant operation failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"errors": []string{"tenant operation failed"}})
}
