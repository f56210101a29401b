package tenancy

import "context"

type contextKey struct{ name string }

var tenantIDKey = &contextKey{"tenant_id"}

// WithTenantID returns a context carrying the resolved tenant id. Every
// storage operation performed under this context is scoped to that tenant.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// TenantID returns the resolved tenant id carried by the context, if any
func TenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
