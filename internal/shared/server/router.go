package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"feedback-backend/internal/analyses"
	"feedback-backend/internal/sentiment"
	"feedback-backend/internal/shared/config"
	"feedback-backend/internal/shared/metrics"
	"feedback-backend/internal/shared/server/middleware"
	"feedback-backend/internal/shared/server/respond"
	"feedback-backend/internal/shared/storage/db"
	"feedback-backend/internal/shared/storage/object"
	localstore "feedback-backend/internal/shared/storage/object/local"
	s3store "feedback-backend/internal/shared/storage/object/s3"
	"feedback-backend/internal/shared/telemetry"
	"feedback-backend/internal/summarize"
	"feedback-backend/internal/wordcloud"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: "DEFAULT",
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/analyses/:id" {
					return "POLLING"
				}
				return "DEFAULT"
			},
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 5, Burst: 20},
				"POLLING": {Rate: 20, Burst: 60},
			},
		}),
	)

	svc := buildService(cfg)
	analysisHandler := analyses.NewHandler(svc)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())
	analysisHandler.RegisterRoutes(api)

	return r
}

func buildService(cfg config.Config) *analyses.Service {
	var repo analyses.Repo
	if sqlDB := connectDB(cfg); sqlDB != nil {
		repo = &analyses.PGRepo{DB: sqlDB}
	} else {
		repo = analyses.NewMemoryRepo()
	}

	svc := analyses.NewService(repo)
	svc.Classifiers = sentiment.NewRegistry()
	svc.Summarizers = buildSummarizers(cfg)
	svc.WordCloud = wordcloud.NewSVGRenderer()
	svc.Assets = buildAssetStore(cfg)
	svc.BatchSize = cfg.SummaryBatchSize
	svc.Workers = cfg.SummaryWorkers
	svc.ItemTimeout = cfg.SummaryItemTimeout
	return svc
}

func connectDB(cfg config.Config) *sql.DB {
	if cfg.DatabaseURL == "" {
		return nil
	}
	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	conn, err := db.Connect(context.Background(), cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database, falling back to memory: %v", err)
		return nil
	}
	if err := db.RunMigrations(context.Background(), conn); err != nil {
		log.Printf("failed to run migrations, falling back to memory: %v", err)
		return nil
	}
	return conn
}

func buildSummarizers(cfg config.Config) map[string]summarize.Summarizer {
	out := make(map[string]summarize.Summarizer)
	if cfg.GeminiAPIKey != "" {
		gem, err := summarize.NewGeminiSummarizer(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			telemetry.Error("summarizer.init_failed", map[string]any{
				"provider": summarize.ModelGemini,
				"error":    err.Error(),
			})
		} else {
			out[summarize.ModelGemini] = gem
		}
	}
	out[summarize.ModelOllama] = summarize.NewOllamaSummarizer(cfg.OllamaBaseURL, cfg.OllamaModel)
	return out
}

func buildAssetStore(cfg config.Config) object.ObjectStore {
	if cfg.ObjectStoreType == "s3" {
		store, err := s3store.New(context.Background(), cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Printf("failed to init s3 store, falling back to local: %v", err)
		} else {
			return store
		}
	}
	return localstore.New(cfg.LocalStoreDir)
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
