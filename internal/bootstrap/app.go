package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"knowyourfan-backend/internal/chat"
	"knowyourfan-backend/internal/documents"
	"knowyourfan-backend/internal/gateway"
	"knowyourfan-backend/internal/gateway/bing"
	"knowyourfan-backend/internal/gateway/ollama"
	"knowyourfan-backend/internal/gateway/openai"
	"knowyourfan-backend/internal/shared/config"
	"knowyourfan-backend/internal/shared/server"
	"knowyourfan-backend/internal/shared/server/middleware"
	"knowyourfan-backend/internal/shared/storage/db"
	"knowyourfan-backend/internal/shared/storage/object"
	localstore "knowyourfan-backend/internal/shared/storage/object/local"
	s3store "knowyourfan-backend/internal/shared/storage/object/s3"
	"knowyourfan-backend/internal/shared/telemetry"
)

// App holds shared dependencies and the configured router.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	DocumentsRepo    documents.Repo
	DocumentsService *documents.Service
	ChatService      *chat.Service
	Searcher         gateway.Searcher
	Verifier         gateway.Verifier
	Conversor        gateway.Conversor
}

// Build prepares every dependency and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if err := buildGateways(app); err != nil {
		return nil, err
	}
	buildServices(app)

	app.Router = server.NewRouter(app.Config, server.RouterDeps{
		Documents:   app.DocumentsService,
		Chat:        app.ChatService,
		RateLimiter: middleware.NewRateLimiter(nil),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_repo", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Error("bootstrap.memory_repo", map[string]any{"reason": "database unavailable", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildGateways picks providers from config. A missing credential yields a
// placeholder so the service still starts and reports the gateway as unavailable.
func buildGateways(app *App) error {
	cfg := app.Config

	app.Searcher = gateway.Unconfigured{Name: "search"}
	if strings.TrimSpace(cfg.BingAPIKey) != "" {
		app.Searcher = bing.New(cfg.BingAPIKey, cfg.SearchRateLimit)
	}

	app.Verifier = gateway.Unconfigured{Name: "verifier"}
	app.Conversor = gateway.Unconfigured{Name: "conversation"}

	switch cfg.LLMProvider {
	case "none":
		return nil
	case "ollama":
		conv, err := ollama.New(cfg.OllamaURL, cfg.LLMChatModel)
		if err != nil {
			return err
		}
		app.Conversor = conv
	default:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			telemetry.Info("bootstrap.gateway_unconfigured", map[string]any{"provider": "openai"})
			return nil
		}
		opts := []openai.Option{openai.WithTimeout(cfg.OpenAITimeout)}
		conv, err := openai.NewConversation(cfg.OpenAIAPIKey, cfg.LLMChatModel, opts...)
		if err != nil {
			return err
		}
		app.Conversor = conv
	}

	// Document verification always runs on the vision model.
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		verifier, err := openai.NewVerifier(cfg.OpenAIAPIKey, cfg.LLMVisionModel, openai.WithTimeout(cfg.OpenAITimeout))
		if err != nil {
			return err
		}
		app.Verifier = verifier
	}
	return nil
}

func buildServices(app *App) {
	var repo documents.Repo
	if app.DB != nil {
		repo = &documents.PGRepo{DB: app.DB}
	} else {
		repo = documents.NewMemoryRepo()
	}

	app.DocumentsRepo = repo
	app.DocumentsService = &documents.Service{
		Repo:       repo,
		Verifier:   app.Verifier,
		Store:      app.Store,
		Files:      app.Store,
		Policy:     documents.NewPolicy(app.Config.AIVerifiedTypes),
		Classifier: documents.ThresholdClassifier{MinConfidence: app.Config.VerifyMinConfidence},
		Logger:     telemetry.Default(),
	}
	app.ChatService = &chat.Service{
		Searcher:  app.Searcher,
		Conversor: app.Conversor,
		Policy:    app.Config.Policy,
		Logger:    telemetry.Default(),
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
