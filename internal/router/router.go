package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/union-registry/internal/handler"
	"github.com/iliyamo/union-registry/internal/middleware"
	"github.com/iliyamo/union-registry/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the login/session endpoints under /v1/auth and the
// authenticated account endpoints under /v1.  loginLimiter guards the
// credential check; pass nil to disable it.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, loginLimiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	if loginLimiter != nil {
		g.POST("/login", a.Login, loginLimiter)
	} else {
		g.POST("/login", a.Login)
	}
	g.POST("/refresh", a.Refresh)
	// logout reads the Bearer header itself, so it stays outside JWTAuth
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.POST("/accounts", a.CreateAccount, middleware.RequireRole(model.RoleAdministrator))
}

// RegisterMembers registers the member registry endpoints.  Both roles may
// list, read and update; the service narrows member-role callers to their
// own record.  Creation, deletion and the filter options are admin only.
// Updates replace the whole record, so only PUT is offered.
func RegisterMembers(e *echo.Echo, h *handler.MemberHandler, jwtSecret string) {
	g := e.Group(
		"/v1/members",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdministrator, model.RoleMember),
	)
	admin := middleware.RequireRole(model.RoleAdministrator)

	g.GET("", h.List)
	g.GET("/filters", h.Filters, admin)
	g.POST("", h.Create, admin)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete, admin)
}

// RegisterReports registers the administrator dashboard.  cache may be nil.
func RegisterReports(e *echo.Echo, h *handler.ReportHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/reports",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdministrator),
	)
	if cache != nil {
		g.Use(cache)
	}
	g.GET("", h.Stats)
}
