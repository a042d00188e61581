package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uni-krs-api/api/swagger"
	"github.com/noah-isme/uni-krs-api/internal/handler"
	"github.com/noah-isme/uni-krs-api/internal/middleware"
	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/repository"
	"github.com/noah-isme/uni-krs-api/internal/service"
	"github.com/noah-isme/uni-krs-api/pkg/cache"
	"github.com/noah-isme/uni-krs-api/pkg/config"
	"github.com/noah-isme/uni-krs-api/pkg/database"
	"github.com/noah-isme/uni-krs-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-krs-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-krs-api/pkg/middleware/requestid"
	"github.com/noah-isme/uni-krs-api/pkg/notify"
)

// @title Uni KRS API
// @version 0.1.0
// @description Enrollment lifecycle engine for the academic portal
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, cache and notifications degrade to no-op", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	subjectRepo := repository.NewSubjectRepository(db)
	offeringRepo := repository.NewOfferingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notifications.Enabled && redisClient != nil {
		notifier = notify.NewRedisNotifier(redisClient, cfg.Notifications.ChannelPrefix, logr)
	}
	notificationSvc := service.NewNotificationService(notifier, studentRepo, cfg.Notifications.WorkerConcurrency, cfg.Notifications.BufferSize, logr)
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	catalogSvc := service.NewCatalogService(subjectRepo, validate, logr)
	offeringSvc := service.NewOfferingService(offeringRepo, enrollmentRepo, subjectRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, subjectRepo, offeringRepo, studentRepo, metricsSvc, validate, logr)
	lifecycleSvc := service.NewLifecycleService(catalogSvc, offeringSvc, enrollmentSvc, notificationSvc, metricsSvc,
		cfg.Catalog.ActiveTerm, cfg.Catalog.DefaultOfferingCapacity, logr)
	exportSvc := service.NewRosterExportService(enrollmentSvc, offeringSvc, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)

	subjectHandler := handler.NewSubjectHandler(catalogSvc)
	offeringHandler := handler.NewOfferingHandler(offeringSvc, exportSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	lifecycleHandler := handler.NewLifecycleHandler(lifecycleSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff)
	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	api.GET("/subjects", subjectHandler.List)
	api.GET("/subjects/:id", subjectHandler.Get)
	api.POST("/subjects", staff, subjectHandler.Create)
	api.PUT("/subjects/:id", staff, subjectHandler.Update)
	api.PATCH("/subjects/:id/status", staff, subjectHandler.SetStatus)

	api.GET("/offerings", offeringHandler.List)
	api.GET("/offerings/:id", offeringHandler.Get)
	api.GET("/offerings/:id/capacity", offeringHandler.Capacity)
	api.GET("/offerings/:id/roster", staff, enrollmentHandler.OfferingRoster)
	api.GET("/offerings/:id/roster/export", staff, offeringHandler.ExportRoster)
	api.POST("/offerings", staff, offeringHandler.Open)
	api.PATCH("/offerings/:id/status", staff, offeringHandler.SetStatus)

	api.GET("/enrollments", staff, enrollmentHandler.List)
	api.POST("/enrollments", enrollmentHandler.Enroll)
	api.DELETE("/enrollments/:id", enrollmentHandler.Withdraw)
	api.GET("/students/:studentId/enrollments", middleware.RBAC("SUPERADMIN", "ADMIN", "STAFF", "SELF"), enrollmentHandler.StudentSchedule)

	api.GET("/teachers/:teacherId/subjects", subjectHandler.ListByTeacher)
	api.GET("/students", staff, studentHandler.List)
	api.GET("/students/:studentId", middleware.RBAC("SUPERADMIN", "ADMIN", "STAFF", "SELF"), studentHandler.Get)

	api.POST("/subjects/:id/activate", admin, lifecycleHandler.Activate)
	api.POST("/subjects/:id/deactivate", admin, lifecycleHandler.Deactivate)
	api.POST("/subjects/:id/force-deactivate", admin, lifecycleHandler.ForceDeactivate)
	api.POST("/subjects/force-delete", admin, lifecycleHandler.ForceDelete)
	api.POST("/subjects/bulk-activate", admin, lifecycleHandler.BulkActivate)

	addr := fmt.Sprintf(":%d", cfg.Port)
	sugar.Infow("server starting", "addr", addr, "env", cfg.Env, "term", cfg.Catalog.ActiveTerm)
	if err := r.Run(addr); err != nil {
		sugar.Fatalw("server failed", "error", err)
	}
}
