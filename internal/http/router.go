package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/authhub/internal/avatar"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// uploads stay under 5 MiB; the body cap leaves room for multipart framing
const maxRequestBody = 8 << 20

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxRequestBody))
	r.Use(prom.GinHandleMiddleware())
	r.Use(otelgin.Middleware("authhub-api"))

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up the stores
	usersRepo := postgres.NewUsersRepo(pool, prom)
	sessions := session.NewManager(cfg.SessionSecret, session.DefaultTTL, cfg.Env == "prod")
	avatars := avatar.NewStore(cfg.AvatarDir, log).WithMetrics(prom.ObserveAvatarOp)

	authHandler := handlers.NewAuthHandler(usersRepo, sessions, avatars, log)
	requireSession := middlewares.NewSessionMiddleware(sessions).RequireSession()

	// stored avatar files are public once uploaded
	r.Static(avatar.URLPrefix, avatars.Dir())

	api := r.Group("/api")
	authRoutes := api.Group("/auth")

	authRoutes.POST("/register", authHandler.Register)
	authRoutes.POST("/login", authHandler.Login)
	// logout is unconditional and idempotent, no session required
	authRoutes.POST("/logout", authHandler.Logout)
	authRoutes.GET("/me", requireSession, authHandler.Me)
	authRoutes.POST("/avatar", requireSession, authHandler.UploadAvatar)
	authRoutes.DELETE("/avatar", requireSession, authHandler.DeleteAvatar)
	authRoutes.GET("/unauthorized", authHandler.Unauthorized)
	authRoutes.GET("/forbidden", authHandler.Forbidden)

	return r
}
