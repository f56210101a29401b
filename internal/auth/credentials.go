package auth

import (
	"context"
	"time"

	"github.com/suteetoe/authgate/internal/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStatus is the outcome of a credential check
type CredentialStatus int

const (
	CredentialOK CredentialStatus = iota
	CredentialFail
	CredentialLocked
	CredentialTwoFactorRequired
)

// CredentialVerifier checks a submitted password against a principal's
// stored credential and reports the lockout and two-factor state.
type CredentialVerifier interface {
	Verify(ctx context.Context, user *model.User, password string) CredentialStatus
}

// LockoutStore persists the failed-attempt counters updated by the verifier
type LockoutStore interface {
	SaveLockoutState(ctx context.Context, user *model.User) error
}

// BcryptVerifier verifies bcrypt password hashes and enforces a lockout
// window after repeated failures.
type BcryptVerifier struct {
	store       LockoutStore
	maxAttempts int
	lockout     time.Duration
	log         *zap.Logger
}

// NewBcryptVerifier creates a verifier with the given lockout policy
func NewBcryptVerifier(store LockoutStore, maxAttempts int, lockout time.Duration, log *zap.Logger) *BcryptVerifier {
	return &BcryptVerifier{
		store:       store,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		log:         log,
	}
}

// Verify implements CredentialVerifier
func (v *BcryptVerifier) Verify(ctx context.Context, user *model.User, password string) CredentialStatus {
	now := time.Now()
	if user.LockoutUntil != nil && user.LockoutUntil.After(now) {
		return CredentialLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return v.recordFailure(ctx, user, now)
	}

	if user.FailedAttempts > 0 || user.LockoutUntil != nil {
		user.FailedAttempts = 0
		user.LockoutUntil = nil
		v.saveLockoutState(ctx, user)
	}

	if user.TwoFactorEnabled {
		return CredentialTwoFactorRequired
	}
	return CredentialOK
}

func (v *BcryptVerifier) recordFailure(ctx context.Context, user *model.User, now time.Time) CredentialStatus {
	user.FailedAttempts++
	if user.FailedAttempts >= v.maxAttempts {
		until := now.Add(v.lockout)
		user.LockoutUntil = &until
		user.FailedAttempts = 0
		v.saveLockoutState(ctx, user)
		return CredentialLocked
	}
	v.saveLockoutState(ctx, user)
	return CredentialFail
}

func (v *BcryptVerifier) saveLockoutState(ctx context.Context, user *model.User) {
	if err := v.store.SaveLockoutState(ctx, user); err != nil {
		v.log.Warn("failed to persist lockout state",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
