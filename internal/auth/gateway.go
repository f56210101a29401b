package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/pkg/jwtutil"
	"go.uber.org/zap"
)

// Outcome is the terminal state of a login, registration or refresh attempt
type Outcome int

const (
	OutcomeIssued Outcome = iota
	OutcomeRejected
	OutcomeLocked
	OutcomeTwoFactorRequired
	OutcomeTenantUnresolved
	OutcomeDuplicate
	OutcomeError
)

// Generic user-facing messages. An unknown tenant, an inactive tenant and a
// wrong password all produce the same rejection so callers cannot enumerate
// tenants or accounts.
const (
	msgTenantRequired      = "tenant identification required"
	msgInvalidCredentials  = "invalid tenant or credentials"
	msgAccountLocked       = "account is temporarily locked"
	msgTwoFactorRequired   = "two-factor authentication required"
	msgEmailTaken          = "email already registered"
	msgInvalidRefreshToken = "invalid or expired refresh token"
	msgInternalError       = "an internal error occurred"
	msgMissingLoginFields  = "email and password are required"
)

// TokenPair is the issued credential set
type TokenPair struct {
	AccessToken            string    `json:"access_token"`
	RefreshToken           string    `json:"refresh_token"`
	AccessTokenExpiration  time.Time `json:"access_token_expiration"`
	RefreshTokenExpiration time.Time `json:"refresh_token_expiration"`
}

// PrincipalInfo is the user summary returned with issued tokens
type PrincipalInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

// Result is the structured outcome of a gateway operation. Tokens and
// Principal are set only when Outcome is OutcomeIssued.
type Result struct {
	Outcome   Outcome
	Tokens    *TokenPair
	Principal *PrincipalInfo
	Errors    []string
}

// TenantDirectory validates resolved tenant identifiers against the registry
type TenantDirectory interface {
	ActiveByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error)
	ActiveByID(ctx context.Context, id string) (*model.Tenant, error)
}

// PrincipalStore is the tenant-scoped user storage consumed by the gateway
type PrincipalStore interface {
	FindByEmail(ctx context.Context, tenantID, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	RoleNames(ctx context.Context, userID string) ([]string, error)
	ReplaceRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
}

// Gateway orchestrates registration, login and refresh: it validates the
// resolved tenant, checks credentials and mints tokens.
type Gateway struct {
	tenants    TenantDirectory
	users      PrincipalStore
	verifier   CredentialVerifier
	tokens     *jwtutil.JWTUtil
	refreshTTL time.Duration
	log        *zap.Logger
}

// NewGateway wires the gateway's collaborators
func NewGateway(tenants TenantDirectory, users PrincipalStore, verifier CredentialVerifier, tokens *jwtutil.JWTUtil, refreshTTL time.Duration, log *zap.Logger) *Gateway {
	return &Gateway{
		tenants:    tenants,
		users:      users,
		verifier:   verifier,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// Login authenticates a principal inside the resolved tenant. The state
// sequence is tenant resolution, credential check, then issuance; any earlier
// failure short-circuits with a generic rejection.
func (g *Gateway) Login(ctx context.Context, tenantIdentifier, email, password string) *Result {
	if strings.TrimSpace(tenantIdentifier) == "" {
		return &Result{Outcome: OutcomeTenantUnresolved, Errors: []string{msgTenantRequired}}
	}
	if email == "" || password == "" {
		return &Result{Outcome: OutcomeRejected, Errors: []string{msgInvalidCredentials}}
	}

	tenant, err := g.tenants.ActiveByIdentifier(ctx, tenantIdentifier)
	if err != nil {
		g.log.Info("login rejected: tenant unknown or inactive",
			zap.String("tenant", tenantIdentifier))
		return rejected()
	}

	user, err := g.users.FindByEmail(ctx, tenant.ID, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			g.log.Error("login failed: user lookup", zap.Error(err))
			return internalError()
		}
		g.log.Info("login rejected: unknown principal",
			zap.String("tenant_id", tenant.ID))
		return rejected()
	}
	if !user.IsActive {
		g.log.Info("login rejected: principal inactive",
			zap.String("user_id", user.ID))
		return rejected()
	}

	switch g.verifier.Verify(ctx, user, password) {
	case CredentialLocked:
		g.log.Info("login rejected: principal locked out",
			zap.String("user_id", user.ID))
		return &Result{Outcome: OutcomeLocked, Errors: []string{msgAccountLocked}}
	case CredentialTwoFactorRequired:
		return &Result{Outcome: OutcomeTwoFactorRequired, Errors: []string{msgTwoFactorRequired}}
	case CredentialFail:
		g.log.Info("login rejected: bad credentials",
			zap.String("user_id", user.ID))
		return rejected()
	}

	return g.issue(ctx, user, tenant.ID)
}

// Register creates a principal inside the resolved tenant and issues tokens.
// The tenant must exist and be active; email uniqueness is per tenant.
func (g *Gateway) Register(ctx context.Context, tenantIdentifier, email, password, firstName, lastName string) *Result {
	if strings.TrimSpace(tenantIdentifier) == "" {
		return &Result{Outcome: OutcomeTenantUnresolved, Errors: []string{msgTenantRequired}}
	}
	if email == "" || password == "" {
		return &Result{Outcome: OutcomeRejected, Errors: []string{msgMissingLoginFields}}
	}

	tenant, err := g.tenants.ActiveByIdentifier(ctx, tenantIdentifier)
	if err != nil {
		g.log.Info("registration rejected: tenant unknown or inactive",
			zap.String("tenant", tenantIdentifier))
		return rejected()
	}

	hash, err := HashPassword(password)
	if err != nil {
		g.log.Error("registration failed: password hash", zap.Error(err))
		return internalError()
	}

	user := &model.User{
		Email:           email,
		NormalizedEmail: model.NormalizeEmail(email),
		PasswordHash:    hash,
		TenantID:        tenant.ID,
		FirstName:       firstName,
		LastName:        lastName,
		IsActive:        true,
	}
	if err := g.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return &Result{Outcome: OutcomeDuplicate, Errors: []string{msgEmailTaken}}
		}
		g.log.Error("registration failed: create user", zap.Error(err))
		return internalError()
	}

	g.log.Info("principal registered",
		zap.String("user_id", user.ID),
		zap.String("tenant_id", tenant.ID))

	return g.issue(ctx, user, tenant.ID)
}

// Refresh exchanges a stored refresh token for a new token pair. The stored
// token is rotated: the new refresh token replaces it, so each principal has
// a single active refresh token.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) *Result {
	if refreshToken == "" {
		return refreshRejected()
	}

	stored, err := g.users.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, ErrRefreshTokenNotFound) {
			g.log.Error("refresh failed: token lookup", zap.Error(err))
			return internalError()
		}
		return refreshRejected()
	}
	if stored.IsExpired() {
		return refreshRejected()
	}

	user, err := g.users.FindByID(ctx, stored.UserID)
	if err != nil || !user.IsActive {
		return refreshRejected()
	}

	// The tenant may have been deactivated since the token was issued.
	if _, err := g.tenants.ActiveByID(ctx, user.TenantID); err != nil {
		return refreshRejected()
	}

	return g.issue(ctx, user, user.TenantID)
}

// issue mints the access and refresh tokens and persists the refresh record.
// Nothing is returned to the caller unless every step, including persistence,
// has completed.
func (g *Gateway) issue(ctx context.Context, user *model.User, tenantID string) *Result {
	roles, err := g.users.RoleNames(ctx, user.ID)
	if err != nil {
		g.log.Error("issuance failed: role lookup", zap.Error(err))
		return internalError()
	}

	access, accessExp, err := g.tokens.IssueAccessToken(jwtutil.Identity{
		Subject:   user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, roles, tenantID)
	if err != nil {
		g.log.Error("issuance failed: sign access token", zap.Error(err))
		return internalError()
	}

	refresh, err := jwtutil.NewRefreshToken()
	if err != nil {
		g.log.Error("issuance failed: generate refresh token", zap.Error(err))
		return internalError()
	}

	refreshExp := time.Now().Add(g.refreshTTL)
	if err := g.users.ReplaceRefreshToken(ctx, user.ID, refresh, refreshExp); err != nil {
		g.log.Error("issuance failed: persist refresh token", zap.Error(err))
		return internalError()
	}

	return &Result{
		Outcome: OutcomeIssued,
		Tokens: &TokenPair{
			AccessToken:            access,
			RefreshToken:           refresh,
			AccessTokenExpiration:  accessExp,
			RefreshTokenExpiration: refreshExp,
		},
		Principal: &PrincipalInfo{
			ID:       user.ID,
			Email:    user.Email,
			TenantID: tenantID,
			Roles:    roles,
		},
	}
}

func rejected() *Result {
	return &Result{Outcome: OutcomeRejected, Errors: []string{msgInvalidCredentials}}
}

func refreshRejected() *Result {
	return &Result{Outcome: OutcomeRejected, Errors: []string{msgInvalidRefreshToken}}
}

func internalError() *Result {
	return &Result{Outcome: OutcomeError, Errors: []string{msgInternalError}}
}
