package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/lms-cert-api/api/swagger"
	"github.com/noah-isme/lms-cert-api/internal/handler"
	"github.com/noah-isme/lms-cert-api/internal/middleware"
	"github.com/noah-isme/lms-cert-api/internal/models"
	"github.com/noah-isme/lms-cert-api/internal/repository"
	"github.com/noah-isme/lms-cert-api/internal/service"
	"github.com/noah-isme/lms-cert-api/pkg/cache"
	"github.com/noah-isme/lms-cert-api/pkg/config"
	"github.com/noah-isme/lms-cert-api/pkg/database"
	"github.com/noah-isme/lms-cert-api/pkg/export"
	"github.com/noah-isme/lms-cert-api/pkg/jobs"
	"github.com/noah-isme/lms-cert-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-cert-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-cert-api/pkg/middleware/requestid"
	"github.com/noah-isme/lms-cert-api/pkg/render"
	"github.com/noah-isme/lms-cert-api/pkg/storage"
)

// @title LMS Certificate API
// @version 1.0.0
// @description Course completion tracking and verifiable certificate issuance
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lms-cert-api",
	})

	courseSvc := service.NewCourseService(courseRepo, logr)
	progressSvc := service.NewProgressService(progressRepo, courseRepo, validate, logr, metrics, cfg.Certificates.DefaultThreshold)
	approvalSvc := service.NewApprovalService(approvalRepo, studentRepo, courseRepo, cacheRepo, validate, logr)

	renderer := render.NewCertificateRenderer(render.Options{
		InstitutionName: cfg.Certificates.InstitutionName,
		FrontendBaseURL: cfg.Certificates.FrontendBaseURL,
		TemplatePath:    cfg.Certificates.TemplatePath,
	}, logr)

	certSvc := service.NewCertificateService(approvalRepo, progressRepo, renderer, cacheRepo, metrics, logr, cfg.Certificates.InstitutionName, cfg.Verification.CacheTTL)
	registrySvc := service.NewRegistryService(approvalRepo, export.NewCSVExporter(), logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var batchSvc *service.BatchService
	if cfg.Batches.Enabled {
		store, err := storage.NewDocumentStore(cfg.Certificates.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init document store", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
		batchSvc = service.NewBatchService(batchRepo, approvalRepo, certSvc, store, signer, metrics, logr, jobs.QueueConfig{
			Workers:    cfg.Batches.WorkerConcurrency,
			MaxRetries: cfg.Batches.WorkerRetries,
			Logger:     logr,
		})
		batchSvc.Start(ctx)
		defer batchSvc.Stop()
		go batchSvc.RunCleanup(ctx, cfg.Certificates.CleanupInterval, cfg.Certificates.SignedURLTTL)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)
	certHandler := handler.NewCertificateHandler(approvalSvc, certSvc, registrySvc)
	verifyHandler := handler.NewVerificationHandler(certSvc)
	batchHandler := handler.NewBatchHandler(batchSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	// Public verification endpoint. Deliberately outside the API prefix and
	// unauthenticated: printed verbatim on issued documents as a QR target.
	r.GET("/verify-certificate/:certificateId", verifyHandler.Verify)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	enrollment := protected.Group("/courses/:courseId/students/:studentId")
	enrollment.GET("/progress", middleware.RBAC("ADMIN", "INSTRUCTOR", "SELF"), progressHandler.Get)
	enrollment.POST("/lectures/:lectureId/viewed", middleware.RBAC("ADMIN", "INSTRUCTOR", "SELF"), progressHandler.MarkViewed)
	enrollment.POST("/lectures/:lectureId/progress", middleware.RBAC("ADMIN", "INSTRUCTOR", "SELF"), progressHandler.RecordPlayback)
	enrollment.DELETE("/progress",
		middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor),
		middleware.Audit(userRepo, models.AuditActionProgressReset, "progress"),
		progressHandler.Reset)
	enrollment.GET("/certificate", middleware.RBAC("ADMIN", "INSTRUCTOR", "SELF"), certHandler.Status)
	enrollment.GET("/certificate/download",
		middleware.RBAC("ADMIN", "INSTRUCTOR", "SELF"),
		middleware.Audit(userRepo, models.AuditActionCertificateIssue, "certificate"),
		certHandler.Download)

	protected.GET("/courses/:courseId", courseHandler.Get)

	admin := protected.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor))
	admin.PATCH("/courses/:courseId/threshold", courseHandler.UpdateThreshold)
	admin.POST("/certificates/approve", middleware.Audit(userRepo, models.AuditActionCertificateApprove, "certificate_approval"), certHandler.Approve)
	admin.POST("/certificates/revoke", middleware.Audit(userRepo, models.AuditActionCertificateRevoke, "certificate_approval"), certHandler.Revoke)
	admin.GET("/courses/:courseId/certificates/export", certHandler.ExportRegistry)
	admin.POST("/courses/:courseId/certificates/batches", batchHandler.Start)
	admin.GET("/certificates/batches/:id", batchHandler.Get)
	admin.GET("/certificates/batches/download", batchHandler.Download)

	protected.GET("/me/certificates", certHandler.MyCertificates)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
