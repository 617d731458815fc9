// @title Enrollment API
// @version 1.0
// @description Course enrollments, cohort rankings and certificate issuance.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/edu-enrollment-api/api/swagger"
	"github.com/noah-isme/edu-enrollment-api/internal/handler"
	internalmiddleware "github.com/noah-isme/edu-enrollment-api/internal/middleware"
	"github.com/noah-isme/edu-enrollment-api/internal/repository"
	"github.com/noah-isme/edu-enrollment-api/internal/service"
	"github.com/noah-isme/edu-enrollment-api/pkg/cache"
	"github.com/noah-isme/edu-enrollment-api/pkg/config"
	"github.com/noah-isme/edu-enrollment-api/pkg/database"
	"github.com/noah-isme/edu-enrollment-api/pkg/export"
	"github.com/noah-isme/edu-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-enrollment-api/pkg/middleware/requestid"
	"github.com/noah-isme/edu-enrollment-api/pkg/storage"
)

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

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled && cfg.Ranking.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, ranking cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Ranking.CacheTTL, logr, cacheRepo != nil)

	r := gin.New()
	r.MaxMultipartMemory = cfg.Storage.MaxUploadBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	var store interface {
		Name() string
		Upload(ctx context.Context, folder, name string, data []byte) (string, error)
	}
	switch cfg.Storage.Driver {
	case config.StorageDriverCloudinary:
		cld, err := storage.NewCloudinaryStorage(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			logr.Fatal("cloudinary storage unavailable", zap.Error(err))
		}
		store = cld
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			logr.Fatal("local storage unavailable", zap.Error(err))
		}
		r.Static("/uploads", local.Dir())
		store = local
	}
	logr.Info("media storage ready", zap.String("driver", store.Name()))

	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)

	enrollmentSvc := service.NewEnrollmentService(
		enrollmentRepo,
		repository.NewUserRepository(db),
		repository.NewCourseRepository(db),
		repository.NewMentorRepository(db),
		cacheSvc,
		service.EnrollmentConfig{AllowStatusReversion: cfg.Enrollment.AllowStatusReversion},
		validate,
		logr,
	)
	rankingSvc := service.NewRankingService(
		enrollmentRepo,
		cacheSvc,
		metrics,
		export.NewCSVExporter(),
		nil,
		service.RankingConfig{CacheTTL: cfg.Ranking.CacheTTL, DefaultLimit: cfg.Ranking.DefaultLimit},
		logr,
	)
	mediaSvc := service.NewMediaService(store, service.MediaConfig{
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Image: storage.ImageOptions{
			MaxWidth:    cfg.Storage.ImageMaxWidth,
			MaxHeight:   cfg.Storage.ImageMaxHeight,
			JPEGQuality: cfg.Storage.JPEGQuality,
		},
	}, metrics, logr)
	certificateSvc := service.NewCertificateService(
		certificateRepo,
		enrollmentRepo,
		mediaSvc,
		export.NewCertificateRenderer("Enrollment API"),
		cfg.Storage.CertificateFolder,
		metrics,
		validate,
		logr,
	)

	routes := handler.Routes{
		Enrollments:  handler.NewEnrollmentHandler(enrollmentSvc, logr),
		Mentors:      handler.NewMentorHandler(enrollmentSvc),
		Rankings:     handler.NewRankingHandler(rankingSvc),
		Certificates: handler.NewCertificateHandler(certificateSvc),
		Metrics:      handler.NewMetricsHandler(metrics, db),
		Audit:        repository.NewAuditRepository(db),
		Logger:       logr,
	}
	if cfg.JWT.Enabled {
		routes.Tokens = service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	}
	handler.RegisterRoutes(r, cfg.APIPrefix, routes)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "jwt", cfg.JWT.Enabled)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
