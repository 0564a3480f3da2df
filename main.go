package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"metabolitics-api/config"
	"metabolitics-api/models"
	"metabolitics-api/providers"
	"metabolitics-api/providers/simulation"
	"metabolitics-api/queue"
	"metabolitics-api/services"
	"metabolitics-api/storage"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup Database Connection
	db, err := openDatabase(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	logging.Info("Successfully connected to database.", zap.String("driver", cfg.DBDriver))

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}
	seedPublicOwner(db, cfg.PublicOwnerEmail, logging)

	// Mapping vocabularies are loaded once and shared read-only
	vocab, err := services.LoadVocabulary(cfg.SynonymMappingPath, cfg.CompoundMappingPath)
	if err != nil {
		logging.Fatal("Failed to load mapping vocabularies", zap.Error(err))
	}
	synonyms, compounds := vocab.Size()
	logging.Info("Mapping vocabularies loaded", zap.Int("synonyms", synonyms), zap.Int("compounds", compounds))

	// Setup Background Delivery
	var claimer storage.Claimer = storage.NewMemoryClaimer(cfg.ClaimTTL)
	if cfg.RedisAddr != "" {
		redisClaimer, err := storage.NewRedisClaimer(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ClaimTTL)
		if err != nil {
			logging.Fatal("Redis claimer creation failed", zap.Error(err))
		}
		defer redisClaimer.Close()
		claimer = redisClaimer
	}

	var jobs queue.Queue
	switch cfg.QueueBackend {
	case "kafka":
		jobs = queue.NewKafkaQueue(cfg.KafkaBrokerList(), cfg.KafkaTopic, cfg.KafkaGroupID, logging)
	default:
		jobs = queue.NewLocalQueue(cfg.QueueBuffer, cfg.WorkerConcurrency, logging)
	}
	logging.Info("Job queue ready", zap.String("backend", cfg.QueueBackend))

	notifier, err := services.NewMailNotifier(cfg.NotifySMTPURL, cfg.NotifyTimeout, logging)
	if err != nil {
		logging.Fatal("Notifier creation failed", zap.Error(err))
	}

	// Setup Services
	backends := providers.NewRegistry(simulation.NewBackends(cfg, logging)...)
	worker := services.NewAnalysisWorker(db, backends, claimer, notifier, cfg.ResultsBaseURL, logging)
	dispatcher := services.NewDispatcher(db,
		services.NewIdentifierMapper(vocab, logging),
		services.NewFoldChangeNormalizer(nil, logging),
		worker, jobs, notifier, cfg.ResultsBaseURL, logging)
	svc := &appServices{
		Dispatcher:  dispatcher,
		Ranker:      services.NewSimilarityRanker(db, nil, logging),
		Predictor:   services.NewDiseasePredictor(db, cfg.ModelsDir, logging),
		Catalog:     services.NewCatalog(db, logging),
		PublicOwner: services.PublicOwner{FallbackEmail: cfg.PublicOwnerEmail},
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := jobs.Start(ctx, worker.Handle); err != nil {
			logging.Error("Job queue stopped with error", zap.Error(err))
		}
	}()

	// Setup Cron
	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.SweepSchedule, func() {
		count, err := worker.Sweep(ctx, jobs, cfg.SweepStaleAfter)
		if err != nil {
			logging.Error("Sweep job failed", zap.Error(err))
			return
		}
		logging.Info("Sweep job completed", zap.Int("requeued", count))
	}); err != nil {
		logging.Fatal("Invalid SWEEP_SCHEDULE", zap.Error(err))
	}

	if cfg.ModelsS3Enabled() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		modelSync := storage.NewModelSync(s3Client, cfg, logging)
		if _, err := modelSync.Sync(ctx); err != nil {
			logging.Error("Initial model sync failed", zap.Error(err))
		}
		if _, err := cronScheduler.AddFunc(cfg.ModelsSyncSchedule, func() {
			if _, err := modelSync.Sync(ctx); err != nil {
				logging.Error("Model sync job failed", zap.Error(err))
			}
		}); err != nil {
			logging.Fatal("Invalid MODELS_SYNC_SCHEDULE", zap.Error(err))
		}
	}
	cronScheduler.Start()

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(db, logging))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Setup Routes
	setupAnalysisRoutes(router, svc, logging)
	setupDiseaseRoutes(router, svc, logging)
	setupDeleteRoutes(router, svc, logging)
	setupModelRoutes(router, svc, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.SimulationTimeout + time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server shutdown failed", zap.Error(err))
	}
	<-cronScheduler.Stop().Done()
	if err := jobs.Close(); err != nil {
		logging.Error("Closing job queue failed", zap.Error(err))
	}
	<-workersDone
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.DBDriver == "sqlite" {
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	}
	return gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
}

// seedPublicOwner legt das Fallback-Konto für öffentliche Einreichungen an.
func seedPublicOwner(db *gorm.DB, email string, logging *zap.Logger) {
	var count int64
	db.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return
	}
	owner := models.User{Email: email, APIKey: uuid.NewString()}
	if err := db.Create(&owner).Error; err != nil {
		logging.Warn("Failed to seed public owner account", zap.Error(err))
	} else {
		logging.Info("Public owner account seeded.", zap.String("email", email))
	}
}
