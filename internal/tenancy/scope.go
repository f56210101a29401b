package tenancy

import (
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// TenantOwned is implemented by models whose rows belong to exactly one
// tenant. Implementing it opts the model into automatic scoping.
type TenantOwned interface {
	GetTenantID() string
	SetTenantID(string)
}

// ScopePlugin enforces tenant isolation at the storage layer. When the
// statement context carries a resolved tenant id, every query, update and
// delete on a TenantOwned model is constrained to rows of that tenant, and
// every insert stamps the tenant id onto new records whose tenant is unset.
//
// A cross-tenant update or delete therefore matches zero rows; callers see
// not-found, never forbidden. When no tenant is in context the plugin does
// nothing; that path exists for migrations and seeding and must not be
// reachable from request handling, where middleware always sets the tenant
// before any scoped store is touched.
type ScopePlugin struct{}

// Name implements gorm.Plugin
func (ScopePlugin) Name() string { return "tenancy:scope" }

// Initialize implements gorm.Plugin
func (ScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenancy:scope_query", addTenantFilter); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenancy:scope_row", addTenantFilter); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenancy:scope_update", addTenantFilter); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenancy:scope_delete", addTenantFilter); err != nil {
		return err
	}
	return db.Callback().Create().Before("gorm:create").Register("tenancy:scope_create", stampTenant)
}

// tenantField returns the TenantID schema field when the statement's model
// has opted into scoping, nil otherwise.
func tenantField(db *gorm.DB) *schema.Field {
	s := db.Statement.Schema
	if s == nil {
		return nil
	}
	if _, ok := reflect.New(s.ModelType).Interface().(TenantOwned); !ok {
		return nil
	}
	return s.LookUpField("TenantID")
}

func addTenantFilter(db *gorm.DB) {
	if tenantField(db) == nil {
		return
	}
	tid, ok := TenantID(db.Statement.Context)
	if !ok {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "tenant_id"},
			Value:  tid,
		},
	}})
}

func stampTenant(db *gorm.DB) {
	field := tenantField(db)
	if field == nil {
		return
	}
	tid, ok := TenantID(db.Statement.Context)
	if !ok {
		return
	}

	// Only new records are stamped; a record that already carries a tenant
	// keeps it even when saved under a different tenant context.
	switch db.Statement.ReflectValue.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < db.Statement.ReflectValue.Len(); i++ {
			rv := db.Statement.ReflectValue.Index(i)
			if _, zero := field.ValueOf(db.Statement.Context, rv); zero {
				_ = field.Set(db.Statement.Context, rv, tid)
			}
		}
	case reflect.Struct:
		if _, zero := field.ValueOf(db.Statement.Context, db.Statement.ReflectValue); zero {
			_ = field.Set(db.Statement.Context, db.Statement.ReflectValue, tid)
		}
	}
}
