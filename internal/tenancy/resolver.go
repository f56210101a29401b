package tenancy

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/authgate/pkg/config"
	"github.com/suteetoe/authgate/pkg/jwtutil"
)

// ClaimsContextKey is the echo context key under which the auth middleware
// stores the validated token claims.
const ClaimsContextKey = "user"

// Resolver determines which tenant a request belongs to from the available
// signals, checked in fixed precedence: authenticated claim, request header,
// route parameter, query parameter. The first non-empty signal wins; empty
// and whitespace-only values count as absent. The resolver does not check
// that the value names an existing or active tenant.
type Resolver struct {
	HeaderName string
	RouteParam string
	QueryParam string
}

// NewResolver builds a resolver with the configured signal names
func NewResolver(cfg *config.TenantConfig) *Resolver {
	return &Resolver{
		HeaderName: cfg.HeaderName,
		RouteParam: cfg.RouteParam,
		QueryParam: cfg.QueryParam,
	}
}

// Resolve returns the tenant identifier for the request, or false when no
// signal yields one.
func (r *Resolver) Resolve(c echo.Context) (string, bool) {
	// An authenticated principal's own claim cannot be spoofed without
	// forging the token signature, so it outranks every request-side signal.
	// An unauthenticated request skips this step entirely.
	if claims, ok := c.Get(ClaimsContextKey).(*jwtutil.Claims); ok && claims != nil {
		if v := strings.TrimSpace(claims.TenantID); v != "" {
			return v, true
		}
	}

	if v := strings.TrimSpace(c.Request().Header.Get(r.HeaderName)); v != "" {
		return v, true
	}

	if v := strings.TrimSpace(c.Param(r.RouteParam)); v != "" {
		return v, true
	}

	if v := strings.TrimSpace(c.QueryParam(r.QueryParam)); v != "" {
		return v, true
	}

	return "", false
}
