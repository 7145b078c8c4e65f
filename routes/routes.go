package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/controllers"
	"github.com/kendall-kelly/repairdesk-api/guard"
	"github.com/kendall-kelly/repairdesk-api/middleware"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
	"github.com/kendall-kelly/repairdesk-api/stores"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies is everything the HTTP layer is built from
type Dependencies struct {
	Config     *config.Config
	Identities *stores.IdentityStore
	Profiles   *stores.ProfileStore
	Requests   *services.RequestService
	UserAdmin  *services.UserAdminService
	Vendors    *services.VendorService
	Reports    *services.ReportService
	// UploadDir is set when attachments are stored on local disk
	UploadDir string
}

// NewRouter builds the engine with the shared middleware and every route
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.PrometheusMiddleware(),
		middleware.CORS(deps.Config.CORSAllowedOrigins),
	)
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the API under /api/v1, the gated page routes and /metrics
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	session := middleware.ResolveSession(deps.Identities, deps.Profiles)
	optional := middleware.OptionalToken(cfg)

	authController := controllers.NewAuthController(deps.Identities, deps.UserAdmin, deps.Profiles, cfg)
	requestController := controllers.NewRequestController(deps.Requests, deps.Identities.Changes)
	adminController := controllers.NewAdminController(deps.UserAdmin)
	vendorController := controllers.NewVendorController(deps.Vendors)
	reportController := controllers.NewReportController(deps.Reports)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", controllers.HealthCheck)
		v1.GET("/database/status", controllers.DatabaseStatus)

		if deps.UploadDir != "" {
			v1.GET("/uploads/:filename", controllers.NewUploadController(deps.UploadDir).GetUploadedFile)
		}

		auth := v1.Group("/auth")
		{
			auth.POST("/signup", authController.SignUp)
			auth.POST("/login", authController.Login)
			auth.POST("/logout", middleware.EnsureValidToken(cfg), session, middleware.RequireSignedIn(), authController.Logout)
		}

		api := v1.Group("", optional, session)

		api.GET("/users/me", middleware.RequireSignedIn(), authController.Me)

		requests := api.Group("/requests")
		{
			anyRole := middleware.RequireRoles(guard.OwnRequestRoles...)
			oversight := middleware.RequireRoles(guard.AllRequestRoles...)
			assigned := middleware.RequireRoles(guard.AssignedRequestRoles...)
			adminOnly := middleware.RequireRoles(models.RoleAdmin)

			requests.POST("", middleware.RequireRoles(models.RoleUser, models.RoleAdmin), requestController.Create)
			requests.GET("", oversight, requestController.ListAll)
			requests.GET("/stream", oversight, requestController.StreamAll)
			requests.GET("/mine", anyRole, requestController.ListMine)
			requests.GET("/mine/stream", anyRole, requestController.StreamMine)
			requests.GET("/assigned", assigned, requestController.ListAssigned)
			requests.GET("/assigned/stream", assigned, requestController.StreamAssigned)
			requests.GET("/:id", anyRole, requestController.Get)
			requests.PATCH("/:id", adminOnly, requestController.Update)
			requests.PATCH("/:id/status", middleware.RequireRoles(models.RoleTechnician, models.RoleAdmin), requestController.UpdateStatus)
			requests.DELETE("/:id", adminOnly, requestController.Delete)
		}

		admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/users", adminController.CreateUser)
			admin.GET("/users", adminController.ListUsers)
			admin.PUT("/users/:id/role", adminController.SetRole)
			admin.PUT("/users/:id/disabled", adminController.SetDisabled)
		}

		vendors := api.Group("/vendors", middleware.RequireRoles(models.RoleAdmin))
		{
			vendors.GET("", vendorController.List)
			vendors.POST("", vendorController.Create)
			vendors.GET("/:id", vendorController.Get)
			vendors.PUT("/:id", vendorController.Update)
			vendors.DELETE("/:id", vendorController.Delete)
		}

		api.GET("/reports/summary", middleware.RequireRoles(models.RoleManager, models.RoleAdmin), reportController.Summary)
	}

	pages := router.Group("", optional, session)
	for _, route := range guard.Routes {
		pages.GET(route.Path, middleware.GuardPage(route), controllers.Page(route))
	}
	for _, path := range guard.PublicPaths {
		pages.GET(path, controllers.PublicPage(path))
	}
}
