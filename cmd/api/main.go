package main

import (
	"context"
	"errors"
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
	"go.uber.org/zap"

	_ "github.com/univlabs/qr-attendance-api/api/swagger"
	"github.com/univlabs/qr-attendance-api/internal/handler"
	"github.com/univlabs/qr-attendance-api/internal/middleware"
	"github.com/univlabs/qr-attendance-api/internal/repository"
	"github.com/univlabs/qr-attendance-api/internal/service"
	"github.com/univlabs/qr-attendance-api/pkg/cache"
	"github.com/univlabs/qr-attendance-api/pkg/config"
	"github.com/univlabs/qr-attendance-api/pkg/database"
	"github.com/univlabs/qr-attendance-api/pkg/jobs"
	"github.com/univlabs/qr-attendance-api/pkg/logger"
	corsmiddleware "github.com/univlabs/qr-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univlabs/qr-attendance-api/pkg/middleware/requestid"
	"github.com/univlabs/qr-attendance-api/pkg/storage"
)

// @title QR Attendance API
// @version 0.1.0
// @description QR-code class attendance: scan, submit, score
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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	location, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid attendance timezone", "timezone", cfg.Attendance.Timezone, "error", err)
	}

	store, err := storage.NewLocalStorage(cfg.Materials.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare material storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Materials.SignedURLSecret, cfg.Materials.SignedURLTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mailQueue := jobs.NewQueue("mail", mailHandler(cfg, logr), jobs.QueueConfig{
		Workers:    cfg.Mail.WorkerConcurrency,
		MaxRetries: cfg.Mail.WorkerRetries,
		Logger:     logr,
	})
	mailQueue.Start(ctx)
	defer mailQueue.Stop()

	// Repositories.
	courseRepo := repository.NewCourseRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	excusedRepo := repository.NewExcusedAbsenceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	holidayRepo := repository.NewHolidayRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()

	// Services.
	metricsSvc := service.NewMetricsService()
	resolverSvc := service.NewResolverService(courseRepo, scheduleRepo, sessionRepo, holidayRepo, location,
		service.ResolverConfig{HolidayCheckOnScan: cfg.Attendance.HolidayCheckOnScan}, logr)
	attendanceSvc := service.NewAttendanceService(resolverSvc, attendanceRepo, studentRepo, excusedRepo, cacheRepo, validate, logr)
	scoringSvc := service.NewScoringService(courseRepo, sessionRepo, enrollmentRepo, attendanceRepo, excusedRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	generatorSvc := service.NewGeneratorService(courseRepo, scheduleRepo, sessionRepo, holidayRepo, cacheRepo, cfg.Attendance.DefaultTotalWeeks, logr)
	holidaySvc := service.NewHolidayService(holidayRepo, sessionRepo, cacheRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, validate, logr)
	rosterSvc := service.NewRosterService(studentRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, validate, logr)
	materialSvc := service.NewMaterialService(materialRepo, store, signer, cfg.BaseURL, cfg.Materials.MaxFileSizeBytes, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	portalSvc := service.NewPortalService(studentRepo, rosterSvc, tokenRepo, mailQueue, validate, logr, service.PortalConfig{
		TokenSecret:    cfg.Portal.TokenSecret,
		TokenTTL:       cfg.Portal.TokenTTL,
		SessionTTL:     cfg.Portal.SessionTTL,
		AllowedDomains: cfg.Portal.AllowedEmailDomains,
		BaseURL:        cfg.BaseURL,
		Issuer:         cfg.JWT.Issuer,
	})

	// Handlers.
	scanHandler := handler.NewScanHandler(resolverSvc, attendanceSvc, metricsSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, scheduleSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, generatorSvc, attendanceSvc, metricsSvc)
	dashboardHandler := handler.NewDashboardHandler(scoringSvc)
	holidayHandler := handler.NewHolidayHandler(holidaySvc)
	studentHandler := handler.NewStudentHandler(rosterSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	materialHandler := handler.NewMaterialHandler(materialSvc)
	portalHandler := handler.NewPortalHandler(portalSvc, scoringSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public scan surface.
	r.GET("/a/:qrToken", scanHandler.Scan)
	r.POST("/a/:qrToken/submit", scanHandler.Submit)
	r.GET("/materials/download", materialHandler.Download)

	// Student portal.
	portal := r.Group("/portal")
	portal.POST("/request-link", portalHandler.RequestLink)
	portal.POST("/verify", portalHandler.Verify)
	portalAuth := portal.Group("")
	portalAuth.Use(middleware.PortalJWT(portalSvc))
	portalAuth.GET("/dashboard", portalHandler.Dashboard)
	portalAuth.GET("/courses/:id", portalHandler.CourseDetail)

	// Instructor API.
	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.InstructorJWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/courses", courseHandler.List)
	authed.POST("/courses", courseHandler.Create)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.PUT("/courses/:id", courseHandler.Update)
	authed.DELETE("/courses/:id", courseHandler.Delete)
	authed.POST("/courses/:id/rotate-token", courseHandler.RotateQRToken)

	authed.GET("/courses/:id/schedules", courseHandler.ListSchedules)
	authed.POST("/courses/:id/schedules", courseHandler.CreateSchedule)
	authed.PUT("/schedules/:scheduleId", courseHandler.UpdateSchedule)
	authed.DELETE("/schedules/:scheduleId", courseHandler.DeleteSchedule)

	authed.GET("/courses/:id/sessions", sessionHandler.List)
	authed.POST("/courses/:id/sessions/generate", sessionHandler.Generate)
	authed.GET("/sessions/:sessionId/records", sessionHandler.Records)
	authed.POST("/courses/:id/excused-absences", sessionHandler.Excuse)
	authed.DELETE("/courses/:id/excused-absences/:absenceId", sessionHandler.RemoveExcuse)

	authed.GET("/courses/:id/dashboard", dashboardHandler.Dashboard)
	authed.GET("/courses/:id/matrix", dashboardHandler.Matrix)
	authed.GET("/courses/:id/matrix/export.csv", dashboardHandler.ExportCSV)
	authed.GET("/courses/:id/matrix/export.pdf", dashboardHandler.ExportPDF)

	authed.GET("/holidays", holidayHandler.List)
	authed.POST("/holidays", holidayHandler.Create)
	authed.DELETE("/holidays/:id", holidayHandler.Delete)

	authed.GET("/students", studentHandler.List)
	authed.POST("/students", studentHandler.Create)
	authed.GET("/students/:id", studentHandler.Get)
	authed.PUT("/students/:id", studentHandler.Update)
	authed.DELETE("/students/:id", studentHandler.Delete)

	authed.GET("/courses/:id/enrollments", enrollmentHandler.List)
	authed.POST("/courses/:id/enrollments", enrollmentHandler.Enroll)
	authed.PUT("/enrollments/:enrollmentId/grades", enrollmentHandler.UpdateGrades)
	authed.DELETE("/enrollments/:enrollmentId", enrollmentHandler.Unenroll)
	authed.POST("/courses/:id/grades/import", enrollmentHandler.ImportGrades)

	authed.GET("/courses/:id/materials", materialHandler.List)
	authed.POST("/courses/:id/materials", materialHandler.CreateLink)
	authed.POST("/courses/:id/materials/upload", materialHandler.Upload)
	authed.PUT("/materials/:materialId", materialHandler.Update)
	authed.DELETE("/materials/:materialId", materialHandler.Delete)
	authed.GET("/materials/:materialId/download-url", materialHandler.DownloadURL)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

// mailHandler delivers magic-link mail. Without an SMTP relay configured it
// logs the link, which is enough for development.
func mailHandler(cfg *config.Config, logr *zap.Logger) jobs.Handler {
	return func(_ context.Context, job jobs.Job) error {
		mail, ok := job.Payload.(service.MagicLinkMail)
		if !ok {
			return fmt.Errorf("unexpected mail payload %T", job.Payload)
		}
		logr.Sugar().Infow("magic link mail dispatched",
			"from", cfg.Mail.FromAddress,
			"to", mail.To,
			"link", mail.Link)
		return nil
	}
}
