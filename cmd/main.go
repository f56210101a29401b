package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/suteetoe/authgate/internal/auth"
	"github.com/suteetoe/authgate/internal/handler"
	"github.com/suteetoe/authgate/internal/middleware"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/internal/tenancy"
	"github.com/suteetoe/authgate/pkg/config"
	"github.com/suteetoe/authgate/pkg/database"
	"github.com/suteetoe/authgate/pkg/jwtutil"
	"github.com/suteetoe/authgate/pkg/logger"
	"github.com/suteetoe/authgate/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting identity gateway...", cfg.LogConfig()...)

	// The signing key is validated before anything else: the service must not
	// start in a half-configured signing state.
	keyProvider, err := jwtutil.NewKeyProvider(&cfg.JWT)
	if err != nil {
		log.Fatal("Signing key misconfigured", zap.Error(err))
	}
	tokens := jwtutil.New(keyProvider, &cfg.JWT)
	log.Info("Signing key provider initialized", zap.Bool("rsa_mode", cfg.JWT.UseRsaCertificate))

	// Initialize database
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	if err := database.MigrateModels(db,
		&model.Tenant{},
		&model.User{},
		&model.Role{},
		&model.UserRole{},
		&model.RefreshToken{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Install the tenant isolation plugin: every scoped read and write under
	// a request context is filtered and stamped by the resolved tenant.
	if err := db.Use(tenancy.ScopePlugin{}); err != nil {
		log.Fatal("Failed to install tenancy scope plugin", zap.Error(err))
	}

	// Core components
	registry := tenancy.NewRegistry(db)
	resolver := tenancy.NewResolver(&cfg.Tenant)
	store := auth.NewStore(db)
	verifier := auth.NewBcryptVerifier(store, cfg.Auth.MaxFailedAttempts, cfg.Auth.LockoutDuration, log)
	gateway := auth.NewGateway(registry, store, verifier, tokens, cfg.JWT.RefreshTokenExpiration, log)

	// Handlers
	authHandler := handler.NewAuthHandler(gateway, resolver)
	tenantHandler := handler.NewTenantHandler(registry)
	userHandler := handler.NewUserHandler(db)
	roleHandler := handler.NewRoleHandler(db)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.Metrics)

	// Authentication routes; the tenant comes from the header, route or
	// query signal since no claim exists yet
	authGroup := e.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/refresh", authHandler.Refresh)

	// Legacy route-segment variant of the same endpoints
	tenantRoutes := e.Group("/t/:" + cfg.Tenant.RouteParam + "/auth")
	tenantRoutes.POST("/login", authHandler.Login)
	tenantRoutes.POST("/register", authHandler.Register)

	// API routes - require a valid token and a resolvable active tenant
	api := e.Group("/api")
	api.Use(middleware.JWTAuth(tokens))
	api.Use(middleware.RequireTenant(resolver, registry))

	users := api.Group("/users")
	users.GET("", userHandler.List)
	users.GET("/profile", userHandler.GetProfile)
	users.PATCH("/profile", userHandler.UpdateProfile)
	users.POST("/change-password", userHandler.ChangePassword)

	roles := api.Group("/roles")
	roles.POST("", roleHandler.Create)
	roles.GET("", roleHandler.List)
	roles.POST("/grant", roleHandler.Grant)

	// Tenant administration bypasses tenant resolution: creating the first
	// tenant must work without one
	admin := e.Group("/admin/tenants")
	admin.POST("", tenantHandler.Create)
	admin.GET("", tenantHandler.List)
	admin.GET("/:identifier", tenantHandler.Get)
	admin.PATCH("/:identifier", tenantHandler.Update)
	admin.POST("/:identifier/activate", tenantHandler.Activate)
	admin.POST("/:identifier/deactivate", tenantHandler.Deactivate)
	admin.DELETE("/:identifier", tenantHandler.Delete)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
