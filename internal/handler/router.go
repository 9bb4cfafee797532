package handler

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jobboard/backend/internal/config"
	"github.com/jobboard/backend/internal/model"
	"github.com/jobboard/backend/internal/service"
)

func NewRouter(log *slog.Logger, authSvc *service.AuthService, httpCfg config.HTTPConfig, cors config.CORSConfig) (*gin.Engine, error) {
	useJSONFieldNames()

	r := gin.New()
	// an empty list clears gin's trust-all default, ClientIP is then the peer address
	if err := r.SetTrustedProxies(httpCfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(
		RequestID(),
		RequestLogger(log),
		Recovery(log),
		ErrorHandler(log),
		CORSMiddleware(cors.AllowedOrigins, cors.AllowCredentials),
	)

	r.GET("/", Root)
	r.GET("/ping", Ping)
	r.GET("/openapi.json", OpenAPIDoc)

	h := NewAuthHandler(authSvc)
	requireAuth := AuthMiddleware(authSvc)

	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		auth.GET("/profile", requireAuth, h.GetProfile)
		auth.PUT("/profile", requireAuth, h.UpdateProfile)
		auth.DELETE("/profile", requireAuth, h.DeleteProfile)
	}

	admin := r.Group("/admin", requireAuth, RequireRole(model.RoleAdmin))
	{
		admin.GET("/users/:id/logins", h.LoginHistory)
	}

	return r, nil
}
