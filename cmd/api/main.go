package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/modulearn/modulearn-api/api/swagger"
	"github.com/modulearn/modulearn-api/internal/docling"
	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/handler"
	"github.com/modulearn/modulearn-api/internal/middleware"
	"github.com/modulearn/modulearn-api/internal/repository"
	"github.com/modulearn/modulearn-api/internal/service"
	"github.com/modulearn/modulearn-api/pkg/cache"
	"github.com/modulearn/modulearn-api/pkg/config"
	"github.com/modulearn/modulearn-api/pkg/database"
	"github.com/modulearn/modulearn-api/pkg/jobs"
	"github.com/modulearn/modulearn-api/pkg/logger"
	"github.com/modulearn/modulearn-api/pkg/mail"
	corsmiddleware "github.com/modulearn/modulearn-api/pkg/middleware/cors"
	reqidmiddleware "github.com/modulearn/modulearn-api/pkg/middleware/requestid"
	"github.com/modulearn/modulearn-api/pkg/ratelimit"
	"github.com/modulearn/modulearn-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync()

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server exited", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	// Redis is an optional tier: the API stays up without it, caching just
	// degrades to the in-process tier.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching degraded", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	localCache := cache.NewMemory(time.Minute)
	defer localCache.Close()

	uploadsStorage, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		return fmt.Errorf("uploads storage: %w", err)
	}
	exportsStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("exports storage: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	// Caching stays on without redis; the service falls back to the
	// in-process tier when the repo is nil.
	cacheSvc := service.NewCacheService(cacheRepo, localCache, metricsSvc, cfg.Analytics.CacheTTL, logr, true)

	doclingClient := docling.NewClient(cfg.Docling, logr)
	mailer := mail.NewMailer(cfg.Mail, logr)

	limiter := ratelimit.NewFixedWindow(map[ratelimit.Action]ratelimit.Rule{
		ratelimit.ActionPDFUpload:     {Window: cfg.RateLimits.UploadWindow, MaxRequests: cfg.RateLimits.UploadMax},
		ratelimit.ActionPDFProcessing: {Window: cfg.RateLimits.ProcessingWindow, MaxRequests: cfg.RateLimits.ProcessingMax},
		ratelimit.ActionTeamInvite:    {Window: cfg.RateLimits.InviteWindow, MaxRequests: cfg.RateLimits.InviteMax},
	})
	burst := ratelimit.NewTokenBucket(cfg.RateLimits.BurstCapacity, cfg.RateLimits.BurstRefillPerSec)

	// The queue handler closes over the processing service, which in turn
	// dispatches onto the queue. The closure breaks the construction cycle.
	var processingSvc *service.ProcessingService
	queueBuffer := cfg.Processing.WorkerConcurrency * 8
	if queueBuffer <= 0 {
		queueBuffer = 8
	}
	queue := jobs.NewQueue("module-processing", func(ctx context.Context, job jobs.Job) error {
		return processingSvc.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:        cfg.Processing.WorkerConcurrency,
		BufferSize:     queueBuffer,
		MaxRetries:     cfg.Processing.MaxRetries,
		RetryBaseDelay: cfg.Processing.RetryBaseDelay,
		Logger:         logr,
	})

	healthSvc := service.NewHealthService(buildProbes(db, redisClient, doclingClient, uploadsStorage, queue, queueBuffer), logr, service.HealthConfig{
		Interval:          cfg.Health.Interval,
		ProbeTimeout:      cfg.Health.ProbeTimeout,
		DegradedThreshold: cfg.Health.DegradedThreshold,
		AlertLogSize:      cfg.Health.AlertLogSize,
	})

	processingSvc = service.NewProcessingService(service.ProcessingServiceParams{
		Modules:   moduleRepo,
		Sections:  sectionRepo,
		Processor: doclingClient,
		Files:     uploadsStorage,
		Queue:     queue,
		Limiter:   limiter,
		Metrics:   metricsSvc,
		Alerts:    healthSvc,
		Notifier:  mailer,
		Users:     userRepo,
		Cache:     cacheSvc,
		Logger:    logr,
		Config: service.ProcessingConfig{
			MaxRetries: cfg.Processing.MaxRetries,
			Docling: docling.Options{
				EnableOCR:         cfg.Docling.OCREnabled,
				EnableVLM:         cfg.Docling.VLMEnabled,
				VLMModel:          cfg.Docling.VLMModel,
				CodeEnrichment:    cfg.Docling.CodeEnrich,
				FormulaEnrichment: cfg.Docling.FormulaEnrich,
			},
			ModuleURL: cfg.PublicBaseURL + "/modules",
		},
	})

	authSvc := service.NewAuthService(userRepo, orgRepo, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "modulearn-api",
	})

	uploadSvc := service.NewUploadService(service.UploadServiceParams{
		Storage:    uploadsStorage,
		Signer:     storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL),
		Modules:    moduleRepo,
		Orgs:       orgRepo,
		Processing: processingSvc,
		Limiter:    limiter,
		Burst:      burst,
		Logger:     logr,
		Config: service.UploadConfig{
			MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
			UploadURLBase:    cfg.PublicBaseURL + cfg.APIPrefix + "/uploads",
		},
	})

	moduleSvc := service.NewModuleService(moduleRepo, sectionRepo, assignmentRepo, uploadsStorage, cacheSvc, logr)
	sectionSvc := service.NewSectionService(sectionRepo, moduleRepo, cacheSvc, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, moduleRepo, userRepo, logr)
	progressSvc := service.NewProgressService(progressRepo, sectionRepo, moduleRepo, assignmentRepo, cacheSvc, logr)

	teamSvc := service.NewTeamService(userRepo, orgRepo, mailer, limiter, logr, service.TeamConfig{
		JoinURLBase: cfg.PublicBaseURL + "/join",
	})

	analyticsSvc := service.NewAnalyticsService(moduleRepo, userRepo, progressRepo, assignmentRepo, statsRepo, metricsSvc, cacheSvc, logr, service.AnalyticsConfig{
		CacheTTL:      cfg.Analytics.CacheTTL,
		StatsInterval: cfg.Analytics.StatsInterval,
	})

	exportSvc := service.NewExportService(moduleRepo, assignmentRepo, progressRepo, exportsStorage,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr, nil, nil)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	dto.RegisterValidations()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	registerRoutes(r, cfg, authSvc, metricsSvc, handlers{
		auth:       handler.NewAuthHandler(authSvc),
		upload:     handler.NewUploadHandler(uploadSvc),
		module:     handler.NewModuleHandler(moduleSvc, sectionSvc),
		section:    handler.NewSectionHandler(sectionSvc),
		assignment: handler.NewAssignmentHandler(assignmentSvc),
		progress:   handler.NewProgressHandler(progressSvc),
		processing: handler.NewProcessingHandler(processingSvc),
		team:       handler.NewTeamHandler(teamSvc),
		analytics:  handler.NewAnalyticsHandler(analyticsSvc),
		health:     handler.NewHealthHandler(healthSvc),
		export:     handler.NewExportHandler(exportSvc),
	})

	queue.Start(ctx)
	defer queue.Stop()
	processingSvc.RecoverInterrupted(ctx)
	healthSvc.Start(ctx)
	analyticsSvc.StartRollup(ctx)
	exportSvc.StartCleanup(ctx, time.Hour)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type handlers struct {
	auth       *handler.AuthHandler
	upload     *handler.UploadHandler
	module     *handler.ModuleHandler
	section    *handler.SectionHandler
	assignment *handler.AssignmentHandler
	progress   *handler.ProgressHandler
	processing *handler.ProcessingHandler
	team       *handler.TeamHandler
	analytics  *handler.AnalyticsHandler
	health     *handler.HealthHandler
	export     *handler.ExportHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, authSvc *service.AuthService, metricsSvc *service.MetricsService, h handlers) {
	r.GET("/healthz", h.health.Live)
	r.GET("/readyz", h.health.Ready)
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/register", h.auth.Register)
	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)

	// Signed-token endpoints authenticate through the token itself.
	api.PUT("/uploads/:token", h.upload.Receive)
	api.GET("/exports/:token", h.export.Download)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", h.auth.Logout)
		authed.GET("/auth/me", h.auth.Me)

		authed.GET("/modules", h.module.List)
		authed.GET("/modules/:id", h.module.Get)
		authed.GET("/modules/:id/status", h.processing.Status)
		authed.GET("/modules/:id/sections", h.section.List)

		authed.GET("/assignments", h.assignment.ListMine)
		authed.PUT("/modules/:id/sections/:sectionId/progress", h.progress.Update)
		authed.GET("/modules/:id/progress", h.progress.Summary)
	}

	admin := api.Group("", middleware.JWT(authSvc), middleware.AdminOnly())
	{
		admin.POST("/uploads", h.upload.Create)
		admin.POST("/uploads/complete", h.upload.Complete)

		admin.PATCH("/modules/:id", h.module.Update)
		admin.DELETE("/modules/:id", h.module.Delete)
		admin.POST("/modules/:id/retry", h.processing.Retry)

		admin.PATCH("/modules/:id/sections/:sectionId", h.section.Update)
		admin.PUT("/modules/:id/sections/reorder", h.section.Reorder)

		admin.POST("/modules/:id/assignments", h.assignment.Assign)
		admin.GET("/modules/:id/assignments", h.assignment.ListByModule)
		admin.DELETE("/assignments/:id", h.assignment.Unassign)
		admin.GET("/modules/:id/progress/detail", h.progress.Detail)

		admin.POST("/modules/:id/export", h.export.Generate)

		admin.GET("/team", h.team.List)
		admin.POST("/team/invite", h.team.Invite)
		admin.PATCH("/team/:id", h.team.Update)
		admin.DELETE("/team/:id", h.team.Remove)

		admin.GET("/analytics/dashboard", h.analytics.Dashboard)
		admin.GET("/analytics/stats", h.analytics.Stats)
		admin.GET("/analytics/system", h.analytics.System)
		admin.GET("/analytics/health", h.health.Report)
		admin.GET("/analytics/alerts", h.health.Alerts)
	}
}

func buildProbes(db *sqlx.DB, redisClient *redis.Client, doclingClient *docling.Client, uploads *storage.LocalStorage, queue *jobs.Queue, queueBuffer int) []service.Probe {
	probes := []service.Probe{
		{
			Name:     "database",
			Critical: true,
			Check: func(ctx context.Context) error {
				return db.PingContext(ctx)
			},
		},
		{
			Name:     "docling",
			Critical: true,
			Check:    doclingClient.Probe,
		},
		{
			Name:     "storage",
			Critical: true,
			Check: func(ctx context.Context) error {
				_, _, err := uploads.Stat("probe")
				return err
			},
		},
	}
	probes = append(probes, service.Probe{
		Name: "queue",
		Check: func(ctx context.Context) error {
			if backlog := queue.Backlog(); backlog >= queueBuffer {
				return fmt.Errorf("backlog full: %d jobs waiting", backlog)
			}
			return nil
		},
	})
	if redisClient != nil {
		probes = append(probes, service.Probe{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return probes
}
