package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suteetoe/authgate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound         = errors.New("auth: user not found")
	ErrEmailTaken           = errors.New("auth: email already registered")
	ErrRefreshTokenNotFound = errors.New("auth: refresh token not found")
)

// Store is the gorm-backed PrincipalStore and LockoutStore. Login and
// registration run before a tenant context exists, so tenant predicates are
// passed explicitly here; request-time reads go through the isolation plugin
// instead.
type Store struct {
	db *gorm.DB
}

// NewStore creates a principal store over the given database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByEmail looks up a principal by normalized email inside one tenant
func (s *Store) FindByEmail(ctx context.Context, tenantID, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND normalized_email = ?", tenantID, model.NormalizeEmail(email)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

// FindByID looks up a principal by id without a tenant predicate. Used by
// the refresh flow, where the tenant is derived from the stored principal.
func (s *Store) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

// Create inserts a new principal. The (tenant_id, normalized_email) unique
// index enforces per-tenant email uniqueness.
func (s *Store) Create(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// RoleNames returns the names of the roles granted to a principal
func (s *Store) RoleNames(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&model.Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("listing role names: %w", err)
	}
	return names, nil
}

// ReplaceRefreshToken stores the refresh token for a principal, superseding
// any prior token. The user_id unique index makes this an upsert.
func (s *Store) ReplaceRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	rt := model.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
	}).Create(&rt).Error
	if err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken looks up a stored refresh token by its opaque value
func (s *Store) FindRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	return &rt, nil
}

// SaveLockoutState persists the failed-attempt counters for a principal
func (s *Store) SaveLockoutState(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"failed_attempts": user.FailedAttempts,
			"lockout_until":   user.LockoutUntil,
		}).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint")
}
