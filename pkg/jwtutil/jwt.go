package jwtutil

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/suteetoe/authgate/pkg/config"
)

// TenantClaimKey is the claim carrying the resolved tenant id. The key is
// fixed so every client parsing the token sees the same name.
const TenantClaimKey = "tenant_id"

// Number of random bytes in an opaque refresh token.
const refreshTokenBytes = 64

// ErrTokenInvalid is the single validation failure reported to callers.
// The specific failed check is never exposed to the network caller.
var ErrTokenInvalid = errors.New("jwtutil: invalid token")

// Claims is the access-token claim set
type Claims struct {
	Email     string   `json:"email"`
	TenantID  string   `json:"tenant_id"`
	Roles     []string `json:"role,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	jwt.RegisteredClaims
}

// Identity carries the principal fields embedded in an access token
type Identity struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// JWTUtil issues and validates access tokens using the process key provider
type JWTUtil struct {
	provider  *KeyProvider
	issuer    string
	audience  string
	accessTTL time.Duration
}

// New creates a token utility bound to the given key provider and config
func New(provider *KeyProvider, cfg *config.JWTConfig) *JWTUtil {
	return &JWTUtil{
		provider:  provider,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		accessTTL: cfg.AccessTokenExpiration,
	}
}

// IssueAccessToken builds and signs an access token carrying the identity,
// role and tenant claims. The returned time is the token expiry.
func (j *JWTUtil) IssueAccessToken(id Identity, roles []string, tenantID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.accessTTL)

	claims := Claims{
		Email:     id.Email,
		TenantID:  tenantID,
		Roles:     roles,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{j.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	key, method := j.provider.SigningCredential()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwtutil: sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate verifies the signature, issuer, audience and expiry of a token and
// returns its claims. Expiry is checked with zero leeway: a token whose exp
// equals the current instant is already invalid. All failures collapse into
// ErrTokenInvalid.
func (j *JWTUtil) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if !j.provider.Accepts(t.Method) {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.provider.ValidationKey(), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	if !claims.VerifyIssuer(j.issuer, true) {
		return nil, ErrTokenInvalid
	}
	if !claims.VerifyAudience(j.audience, true) {
		return nil, ErrTokenInvalid
	}
	if !claims.VerifyExpiresAt(time.Now(), true) {
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// NewRefreshToken returns an opaque random token. It is a server-side lookup
// key, not a signed token.
func NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("jwtutil: generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
