package app

import (
	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/middleware"
	"github.com/lokatani/scale-core/internal/modules/attachment"
	"github.com/lokatani/scale-core/internal/modules/auth"
	"github.com/lokatani/scale-core/internal/modules/device"
	"github.com/lokatani/scale-core/internal/modules/ml"
	"github.com/lokatani/scale-core/internal/modules/session"
	"github.com/lokatani/scale-core/internal/modules/weighing"
	"github.com/lokatani/scale-core/internal/pkg/blob"
	pkgredis "github.com/lokatani/scale-core/internal/pkg/redis"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

func (a *App) registerRoutes(rc *pkgredis.Client, blobs blob.Store) {
	r := a.router
	db := a.db
	log := a.logger

	r.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	r.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"name":    "scale-core",
			"message": "IoT vegetable weighing backend is running",
		})
	})

	// Shared services
	authSvc := auth.NewService(db, log, a.cfg.EmailDomain)
	authMW := middleware.Auth(authSvc)
	deviceKeyMW := middleware.DeviceKey(a.cfg.DeviceAPIKey)

	sessionStore := session.NewStore(db)
	deviceTracker := device.NewTracker(device.NewGormStore(db), rc, log)
	resolver := session.NewResolver(sessionStore, deviceTracker)

	sessionSvc := session.NewService(sessionStore, log)
	ingest := weighing.NewProcessor(resolver, sessionStore, deviceTracker, log)

	model := ml.NewModel(ml.FromBlob(blobs, a.cfg.ML.ModelKey), nil, log)
	attachSvc := attachment.NewService(sessionStore, blobs, model, log)

	api := r.Group("/api")

	auth.NewHandler(authSvc).RegisterRoutes(api, authMW)
	session.NewHandler(sessionSvc).RegisterRoutes(api, authMW)
	attachment.NewHandler(attachSvc).RegisterRoutes(api, authMW)
	weighing.NewHandler(ingest, deviceTracker).RegisterRoutes(api, deviceKeyMW, middleware.Idempotence(rc.Raw()))
}
