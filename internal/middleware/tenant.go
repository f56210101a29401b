package middleware

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/logger"
	"github.com/suteetoe/authgate/prometheus"
	"go.uber.org/zap"
)

// RequireTenant resolves the request's tenant, validates it against the
// registry and installs it in the request context so every storage operation
// downstream is scoped to it. Requests without a resolvable, active tenant
// never reach the handler.
func RequireTenant(resolver *tenancy.Resolver, registry *tenancy.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			resolved, ok := resolver.Resolve(c)
			if !ok {
				log.Warn("no tenant signal on request")
				prometheus.RecordAuthError("tenant_unresolved")
				return c.JSON(http.StatusBadRequest, echo.Map{
					"errors": []string{"tenant identification required"},
				})
			}

			tenant, err := lookupActive(c, registry, resolved)
			if err != nil {
				if !errors.Is(err, tenancy.ErrTenantNotFound) {
					log.Error("tenant lookup failed", zap.Error(err))
					return c.JSON(http.StatusInternalServerError, echo.Map{
						"errors": []string{"an internal error occurred"},
					})
				}
				// Unknown and inactive tenants are reported the same way as
				// bad credentials.
				log.Warn("tenant unknown or inactive", zap.String("tenant", resolved))
				prometheus.RecordAuthError("tenant_inactive_or_unknown")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"errors": []string{"invalid tenant or credentials"},
				})
			}

			ctx := tenancy.WithTenantID(c.Request().Context(), tenant.ID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenant.ID)

			return next(c)
		}
	}
}

// lookupActive accepts both signal forms: the claim carries the internal
// tenant id (a uuid) while headers, routes and query parameters carry the
// slug.
func lookupActive(c echo.Context, registry *tenancy.Registry, resolved string) (*model.Tenant, error) {
	if _, err := uuid.Parse(resolved); err == nil {
		return registry.ActiveByID(c.Request().Context(), resolved)
	}
	return registry.ActiveByIdentifier(c.Request().Context(), resolved)
}
