package auth_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/authgate/internal/auth"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/config"
	"github.com/suteetoe/authgate/pkg/jwtutil"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// fakeDirectory serves tenants from memory, honoring the active flag the same
// way the registry does.
type fakeDirectory struct {
	tenants map[string]*model.Tenant
}

func (d *fakeDirectory) ActiveByIdentifier(_ context.Context, identifier string) (*model.Tenant, error) {
	t, ok := d.tenants[identifier]
	if !ok || !t.IsActive {
		return nil, tenancy.ErrTenantNotFound
	}
	return t, nil
}

func (d *fakeDirectory) ActiveByID(_ context.Context, id string) (*model.Tenant, error) {
	for _, t := range d.tenants {
		if t.ID == id && t.IsActive {
			return t, nil
		}
	}
	return nil, tenancy.ErrTenantNotFound
}

// fakeStore is an in-memory PrincipalStore and LockoutStore.
type fakeStore struct {
	users   map[string]*model.User
	roles   map[string][]string
	refresh map[string]*model.RefreshToken
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*model.User{},
		roles:   map[string][]string{},
		refresh: map[string]*model.RefreshToken{},
	}
}

func (s *fakeStore) FindByEmail(_ context.Context, tenantID, email string) (*model.User, error) {
	normalized := model.NormalizeEmail(email)
	for _, u := range s.users {
		if u.TenantID == tenantID && u.NormalizedEmail == normalized {
			return u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) Create(_ context.Context, user *model.User) error {
	for _, u := range s.users {
		if u.TenantID == user.TenantID && u.NormalizedEmail == user.NormalizedEmail {
			return auth.ErrEmailTaken
		}
	}
	s.nextID++
	user.ID = fmt.Sprintf("user-%d", s.nextID)
	s.users[user.ID] = user
	return nil
}

func (s *fakeStore) RoleNames(_ context.Context, userID string) ([]string, error) {
	return s.roles[userID], nil
}

func (s *fakeStore) ReplaceRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	for value, rt := range s.refresh {
		if rt.UserID == userID {
			delete(s.refresh, value)
		}
	}
	s.refresh[token] = &model.RefreshToken{UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (s *fakeStore) FindRefreshToken(_ context.Context, token string) (*model.RefreshToken, error) {
	rt, ok := s.refresh[token]
	if !ok {
		return nil, auth.ErrRefreshTokenNotFound
	}
	return rt, nil
}

func (s *fakeStore) SaveLockoutState(_ context.Context, user *model.User) error {
	return nil
}

type fixture struct {
	gateway *auth.Gateway
	dir     *fakeDirectory
	store   *fakeStore
	tokens  *jwtutil.JWTUtil
}

const testPassword = "s3cret-password"

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()

	cfg := &config.JWTConfig{
		SecretKey:             "0123456789abcdef0123456789abcdef",
		Issuer:                "authgate-test",
		Audience:              "authgate-clients",
		AccessTokenExpiration: time.Hour,
	}
	provider, err := jwtutil.NewKeyProvider(cfg)
	require.NoError(t, err)
	tokens := jwtutil.New(provider, cfg)

	dir := &fakeDirectory{tenants: map[string]*model.Tenant{
		"acme":    {ID: "tenant-acme", Identifier: "acme", Name: "Acme", IsActive: true},
		"globex":  {ID: "tenant-globex", Identifier: "globex", Name: "Globex", IsActive: true},
		"dormant": {ID: "tenant-dormant", Identifier: "dormant", Name: "Dormant", IsActive: false},
	}}
	store := newFakeStore()

	log := zap.NewNop()
	verifier := auth.NewBcryptVerifier(store, maxAttempts, 15*time.Minute, log)
	gateway := auth.NewGateway(dir, store, verifier, tokens, 7*24*time.Hour, log)

	return &fixture{gateway: gateway, dir: dir, store: store, tokens: tokens}
}

// addUser seeds a principal directly into the store with a real bcrypt hash.
// MinCost keeps the suite fast.
func (f *fixture) addUser(t *testing.T, tenantID, email string, mutate func(*model.User)) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		Email:           email,
		NormalizedEmail: model.NormalizeEmail(email),
		PasswordHash:    string(hash),
		TenantID:        tenantID,
		IsActive:        true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, f.store.Create(context.Background(), user))
	return user
}

func TestLoginIssuesTokens(t *testing.T) {
	f := newFixture(t, 5)
	user := f.addUser(t, "tenant-acme", "ada@acme.test", nil)
	f.store.roles[user.ID] = []string{"admin"}

	res := f.gateway.Login(context.Background(), "acme", "ada@acme.test", testPassword)
	require.Equal(t, auth.OutcomeIssued, res.Outcome)
	require.NotNil(t, res.Tokens)
	require.NotNil(t, res.Principal)

	assert.Equal(t, user.ID, res.Principal.ID)
	assert.Equal(t, "tenant-acme", res.Principal.TenantID)
	assert.Equal(t, []string{"admin"}, res.Principal.Roles)

	claims, err := f.tokens.Validate(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme", claims.TenantID)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)

	// The refresh token was persisted before anything was returned.
	stored, err := f.store.FindRefreshToken(context.Background(), res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
}

func TestLoginRequiresTenant(t *testing.T) {
	f := newFixture(t, 5)

	for _, identifier := range []string{"", "   "} {
		res := f.gateway.Login(context.Background(), identifier, "ada@acme.test", testPassword)
		assert.Equal(t, auth.OutcomeTenantUnresolved, res.Outcome)
		assert.Nil(t, res.Tokens)
	}
}

// Unknown tenant, inactive tenant, unknown account and wrong password must be
// indistinguishable to the caller.
func TestLoginRejectionsAreUniform(t *testing.T) {
	f := newFixture(t, 5)
	f.addUser(t, "tenant-acme", "ada@acme.test", nil)
	f.addUser(t, "tenant-dormant", "dora@dormant.test", nil)

	cases := map[string]*auth.Result{
		"UnknownTenant":  f.gateway.Login(context.Background(), "nope", "ada@acme.test", testPassword),
		"InactiveTenant": f.gateway.Login(context.Background(), "dormant", "dora@dormant.test", testPassword),
		"UnknownAccount": f.gateway.Login(context.Background(), "acme", "ghost@acme.test", testPassword),
		"WrongPassword":  f.gateway.Login(context.Background(), "acme", "ada@acme.test", "wrong-password"),
	}

	reference := cases["UnknownTenant"]
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, reference, res, "rejection results must be identical")
			assert.Equal(t, auth.OutcomeRejected, res.Outcome)
			assert.Nil(t, res.Tokens)
			assert.Nil(t, res.Principal)
		})
	}
}

func TestLoginRejectsInactivePrincipal(t *testing.T) {
	f := newFixture(t, 5)
	f.addUser(t, "tenant-acme", "ada@acme.test", func(u *model.User) { u.IsActive = false })

	res := f.gateway.Login(context.Background(), "acme", "ada@acme.test", testPassword)
	assert.Equal(t, auth.OutcomeRejected, res.Outcome)
}

func TestLoginTwoFactorRequired(t *testing.T) {
	f := newFixture(t, 5)
	f.addUser(t, "tenant-acme", "ada@acme.test", func(u *model.User) { u.TwoFactorEnabled = true })

	res := f.gateway.Login(context.Background(), "acme", "ada@acme.test", testPassword)
	assert.Equal(t, auth.OutcomeTwoFactorRequired, res.Outcome)
	assert.Nil(t, res.Tokens)
}

func TestLoginLockoutProgression(t *testing.T) {
	f := newFixture(t, 3)
	f.addUser(t, "tenant-acme", "ada@acme.test", nil)

	for i := 0; i < 2; i++ {
		res := f.gateway.Login(context.Background(), "acme", "ada@acme.test", "wrong-password")
		assert.Equal(t, auth.OutcomeRejected, res.Outcome, "attempt %d", i+1)
	}

	// The third failure trips the lockout.
	res := f.gateway.Login(context.Background(), "acme", "ada@acme.test", "wrong-password")
	assert.Equal(t, auth.OutcomeLocked, res.Outcome)

	// Even the correct password is refused while locked.
	res = f.gateway.Login(context.Background(), "acme", "ada@acme.test", testPassword)
	assert.Equal(t, auth.OutcomeLocked, res.Outcome)
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	f := newFixture(t, 3)
	user := f.addUser(t, "tenant-acme", "ada@acme.test", nil)

	res := f.gateway.Login(context.Background(), "acme", "ada@acme.test", "wrong-password")
	require.Equal(t, auth.OutcomeRejected, res.Outcome)
	require.Equal(t, 1, user.FailedAttempts)

	res = f.gateway.Login(context.Background(), "acme", "ada@acme.test", testPassword)
	require.Equal(t, auth.OutcomeIssued, res.Outcome)
	assert.Zero(t, user.FailedAttempts)
	assert.Nil(t, user.LockoutUntil)
}

func TestRegisterIssuesTokens(t *testing.T) {
	f := newFixture(t, 5)

	res := f.gateway.Register(context.Background(), "acme", "New@Acme.Test", testPassword, "Ada", "Lovelace")
	require.Equal(t, auth.OutcomeIssued, res.Outcome)
	require.NotNil(t, res.Tokens)

	claims, err := f.tokens.Validate(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme", claims.TenantID)
	assert.Equal(t, "Ada", claims.FirstName)

	// The stored user carries the normalized address for uniqueness.
	stored, err := f.store.FindByEmail(context.Background(), "tenant-acme", "new@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "New@Acme.Test", stored.Email)
	assert.True(t, stored.IsActive)
}

func TestRegisterEmailUniquenessIsPerTenant(t *testing.T) {
	f := newFixture(t, 5)
	f.addUser(t, "tenant-acme", "ada@example.test", nil)

	t.Run("SameTenantDuplicate", func(t *testing.T) {
		res := f.gateway.Register(context.Background(), "acme", "ADA@example.test", testPassword, "", "")
		assert.Equal(t, auth.OutcomeDuplicate, res.Outcome)
		assert.Nil(t, res.Tokens)
	})

	t.Run("OtherTenantSameEmail", func(t *testing.T) {
		res := f.gateway.Register(context.Background(), "globex", "ada@example.test", testPassword, "", "")
		assert.Equal(t, auth.OutcomeIssued, res.Outcome)
	})
}

func TestRegisterRejectsUnknownOrInactiveTenant(t *testing.T) {
	f := newFixture(t, 5)

	for name, identifier := range map[string]string{"Unknown": "nope", "Inactive": "dormant"} {
		t.Run(name, func(t *testing.T) {
			res := f.gateway.Register(context.Background(), identifier, "ada@x.test", testPassword, "", "")
			assert.Equal(t, auth.OutcomeRejected, res.Outcome)
		})
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t, 5)
	f.addUser(t, "tenant-acme", "ada@acme.test", nil)

	login := f.gateway.Login(context.Background(), "acme", "ada@acme.test", testPassword)
	require.Equal(t, auth.OutcomeIssued, login.Outcome)

	refreshed := f.gateway.Refresh(context.Background(), login.Tokens.RefreshToken)
	require.Equal(t, auth.OutcomeIssued, refreshed.Outcome)
	assert.NotEqual(t, login.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	// The superseded token is gone: a second exchange with it must fail.
	replay := f.gateway.Refresh(context.Background(), login.Tokens.RefreshToken)
	assert.Equal(t, auth.OutcomeRejected, replay.Outcome)
}

func TestRefreshRejections(t *testing.T) {
	f := newFixture(t, 5)
	user := f.addUser(t, "tenant-acme", "ada@acme.test", nil)

	t.Run("EmptyToken", func(t *testing.T) {
		res := f.gateway.Refresh(context.Background(), "")
		assert.Equal(t, auth.OutcomeRejected, res.Outcome)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		res := f.gateway.Refresh(context.Background(), "never-issued")
		assert.Equal(t, auth.OutcomeRejected, res.Outcome)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		require.NoError(t, f.store.ReplaceRefreshToken(context.Background(), user.ID, "expired-token", time.Now().Add(-time.Minute)))
		res := f.gateway.Refresh(context.Background(), "expired-token")
		assert.Equal(t, auth.OutcomeRejected, res.Outcome)
	})

	t.Run("DeactivatedPrincipal", func(t *testing.T) {
		require.NoError(t, f.store.ReplaceRefreshToken(context.Background(), user.ID, "live-token", time.Now().Add(time.Hour)))
		user.IsActive = false
		res := f.gateway.Refresh(context.Background(), "live-token")
		assert.Equal(t, auth.OutcomeRejected, res.Outcome)
		user.IsActive = true
	})

	t.Run("DeactivatedTenant", func(t *testing.T) {
		require.NoError(t, f.store.ReplaceRefreshToken(context.Background(), user.ID, "live-token", time.Now().Add(time.Hour)))
		f.dir.tenants["acme"].IsActive = false
		res := f.gateway.Refresh(context.Background(), "live-token")
		assert.Equal(t, auth.OutcomeRejected, res.Outcome)
		f.dir.tenants["acme"].IsActive = true
	})
}
