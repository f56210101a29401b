package jwtutil

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v4"
	"github.com/suteetoe/authgate/pkg/config"
)

// Symmetric secrets shorter than this are rejected at startup.
const minSecretLength = 32

var (
	ErrSecretMissing  = errors.New("jwtutil: signing secret is not configured")
	ErrSecretTooShort = fmt.Errorf("jwtutil: signing secret must be at least %d characters", minSecretLength)
	ErrKeyPathMissing = errors.New("jwtutil: RSA private key path is not configured")
)

// KeyProvider holds the signing credential and validation key for the mode
// selected at startup. It is immutable after construction and safe for
// unsynchronized concurrent reads; rotating keys requires a restart.
type KeyProvider struct {
	method        jwt.SigningMethod
	signingKey    interface{}
	validationKey interface{}
}

// NewKeyProvider builds a provider for the configured signing mode. Any
// misconfiguration is returned as an error so the caller can refuse to start.
func NewKeyProvider(cfg *config.JWTConfig) (*KeyProvider, error) {
	if cfg.UseRsaCertificate {
		return newRSAKeyProvider(cfg.RsaPrivateKeyPath, cfg.RsaCertificatePassword)
	}
	return newHMACKeyProvider(cfg.SecretKey)
}

func newHMACKeyProvider(secret string) (*KeyProvider, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	key := []byte(secret)
	return &KeyProvider{
		method:        jwt.SigningMethodHS256,
		signingKey:    key,
		validationKey: key,
	}, nil
}

func newRSAKeyProvider(path, password string) (*KeyProvider, error) {
	if path == "" {
		return nil, ErrKeyPathMissing
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jwtutil: read RSA private key: %w", err)
	}

	var key *rsa.PrivateKey
	if password != "" {
		key, err = jwt.ParseRSAPrivateKeyFromPEMWithPassword(pemBytes, password)
	} else {
		key, err = jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("jwtutil: parse RSA private key: %w", err)
	}

	return &KeyProvider{
		method:        jwt.SigningMethodRS256,
		signingKey:    key,
		validationKey: &key.PublicKey,
	}, nil
}

// SigningCredential returns the key and algorithm used to sign tokens
func (p *KeyProvider) SigningCredential() (interface{}, jwt.SigningMethod) {
	return p.signingKey, p.method
}

// ValidationKey returns the key used to verify token signatures
func (p *KeyProvider) ValidationKey() interface{} {
	return p.validationKey
}

// Accepts reports whether a token signed with the given method can be
// verified by this provider. Tokens signed under the other mode are rejected
// before any key material is handed to the parser.
func (p *KeyProvider) Accepts(method jwt.SigningMethod) bool {
	return method != nil && method.Alg() == p.method.Alg()
}
