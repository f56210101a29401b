package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/authgate/internal/auth"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/logger"
	"github.com/suteetoe/authgate/prometheus"
	"go.uber.org/zap"
)

// AuthHandler exposes login, registration and token refresh
type AuthHandler struct {
	gateway  *auth.Gateway
	resolver *tenancy.Resolver
}

// NewAuthHandler wires the handler's collaborators
func NewAuthHandler(gateway *auth.Gateway, resolver *tenancy.Resolver) *AuthHandler {
	return &AuthHandler{gateway: gateway, resolver: resolver}
}

// Login authenticates a principal inside the resolved tenant
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}

	// The tenant for an unauthenticated login comes from the header, route
	// or query signal; the empty value is handled by the gateway.
	tenantIdentifier, _ := h.resolver.Resolve(c)

	result := h.gateway.Login(c.Request().Context(), tenantIdentifier, req.Email, req.Password)
	return writeResult(c, http.StatusOK, result)
}

// Register creates a principal inside the resolved tenant and issues tokens
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}

	tenantIdentifier, _ := h.resolver.Resolve(c)

	result := h.gateway.Register(c.Request().Context(), tenantIdentifier, req.Email, req.Password, req.FirstName, req.LastName)
	return writeResult(c, http.StatusCreated, result)
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RefreshCounter.Inc()

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("failed to parse refresh request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": []string{"invalid request"}})
	}

	result := h.gateway.Refresh(c.Request().Context(), req.RefreshToken)
	return writeResult(c, http.StatusOK, result)
}

// writeResult maps a gateway result to the HTTP response. Failure payloads
// contain only the generic error list; token fields appear only on success.
func writeResult(c echo.Context, successStatus int, result *auth.Result) error {
	switch result.Outcome {
	case auth.OutcomeIssued:
		prometheus.IncreaseActiveTokens()
		return c.JSON(successStatus, echo.Map{
			"access_token":             result.Tokens.AccessToken,
			"refresh_token":            result.Tokens.RefreshToken,
			"access_token_expiration":  result.Tokens.AccessTokenExpiration,
			"refresh_token_expiration": result.Tokens.RefreshTokenExpiration,
			"user":                     result.Principal,
		})
	case auth.OutcomeTenantUnresolved:
		prometheus.RecordAuthError("tenant_unresolved")
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": result.Errors})
	case auth.OutcomeLocked:
		prometheus.RecordAuthError("account_locked")
		return c.JSON(http.StatusForbidden, echo.Map{"errors": result.Errors})
	case auth.OutcomeTwoFactorRequired:
		prometheus.RecordAuthError("two_factor_required")
		return c.JSON(http.StatusUnauthorized, echo.Map{"errors": result.Errors})
	case auth.OutcomeDuplicate:
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"errors": result.Errors})
	case auth.OutcomeRejected:
		prometheus.RecordAuthError("login_failure")
		return c.JSON(http.StatusUnauthorized, echo.Map{"errors": result.Errors})
	default:
		prometheus.RecordAuthError("internal_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"errors": result.Errors})
	}
}
