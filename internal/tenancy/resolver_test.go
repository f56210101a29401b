package tenancy_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/config"
	"github.com/suteetoe/authgate/pkg/jwtutil"
)

func newResolver() *tenancy.Resolver {
	return tenancy.NewResolver(&config.TenantConfig{
		HeaderName: "X-Tenant-Id",
		RouteParam: "tenant",
		QueryParam: "tenant",
	})
}

func newEchoContext(t *testing.T, target string, headers map[string]string) echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec)
}

func TestResolverPrecedence(t *testing.T) {
	r := newResolver()

	t.Run("ClaimBeatsHeader", func(t *testing.T) {
		c := newEchoContext(t, "/?tenant=query-tenant", map[string]string{"X-Tenant-Id": "header-tenant"})
		c.Set(tenancy.ClaimsContextKey, &jwtutil.Claims{TenantID: "claim-tenant"})

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "claim-tenant", resolved)
	})

	t.Run("HeaderBeatsRouteAndQuery", func(t *testing.T) {
		c := newEchoContext(t, "/?tenant=query-tenant", map[string]string{"X-Tenant-Id": "header-tenant"})
		c.SetParamNames("tenant")
		c.SetParamValues("route-tenant")

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "header-tenant", resolved)
	})

	t.Run("RouteBeatsQuery", func(t *testing.T) {
		c := newEchoContext(t, "/?tenant=query-tenant", nil)
		c.SetParamNames("tenant")
		c.SetParamValues("route-tenant")

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "route-tenant", resolved)
	})

	t.Run("QueryIsLast", func(t *testing.T) {
		c := newEchoContext(t, "/?tenant=query-tenant", nil)

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "query-tenant", resolved)
	})
}

func TestResolverSkipsEmptySignals(t *testing.T) {
	r := newResolver()

	t.Run("EmptyClaimFallsThrough", func(t *testing.T) {
		c := newEchoContext(t, "/", map[string]string{"X-Tenant-Id": "header-tenant"})
		c.Set(tenancy.ClaimsContextKey, &jwtutil.Claims{TenantID: "   "})

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "header-tenant", resolved)
	})

	t.Run("WhitespaceHeaderFallsThrough", func(t *testing.T) {
		c := newEchoContext(t, "/?tenant=query-tenant", map[string]string{"X-Tenant-Id": "  "})

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "query-tenant", resolved)
	})

	t.Run("UnauthenticatedSkipsClaimStep", func(t *testing.T) {
		// No claims in the context at all; the header must win without the
		// claim step being treated as present-but-empty.
		c := newEchoContext(t, "/", map[string]string{"X-Tenant-Id": "header-tenant"})

		resolved, ok := r.Resolve(c)
		require.True(t, ok)
		assert.Equal(t, "header-tenant", resolved)
	})
}

func TestResolverNoSignals(t *testing.T) {
	r := newResolver()
	c := newEchoContext(t, "/", nil)

	resolved, ok := r.Resolve(c)
	assert.False(t, ok)
	assert.Empty(t, resolved)
}

func TestResolverTrimsValue(t *testing.T) {
	r := newResolver()
	c := newEchoContext(t, "/", map[string]string{"X-Tenant-Id": "  acme  "})

	resolved, ok := r.Resolve(c)
	require.True(t, ok)
	assert.Equal(t, "acme", resolved)
}
