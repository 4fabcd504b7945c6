package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/abarwater/aqua-router/catalogagent"
	"github.com/abarwater/aqua-router/classifier"
	"github.com/abarwater/aqua-router/config"
	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/infra/audio"
	"github.com/abarwater/aqua-router/infra/gateway"
	"github.com/abarwater/aqua-router/infra/llmclient"
	"github.com/abarwater/aqua-router/infra/pauseregistry"
	"github.com/abarwater/aqua-router/infra/upstreamcatalog"
	"github.com/abarwater/aqua-router/infra/vectorindex"
	"github.com/abarwater/aqua-router/langutil"
	"github.com/abarwater/aqua-router/orchestrator"
	repocatalog "github.com/abarwater/aqua-router/repository/catalog"
	repoconversation "github.com/abarwater/aqua-router/repository/conversation"
	"github.com/abarwater/aqua-router/resolver"
	"github.com/abarwater/aqua-router/syncworker"
)

const defaultValkeyAddress = "127.0.0.1:6379"

// app holds every constructed dependency, built once by buildApp and torn
// down by Close. Nothing here is a package-level global (Design Note §9).
type app struct {
	Config *config.Config
	Logger *logrus.Logger

	db *gorm.DB

	Conversation conversation.Store
	Catalog      *repocatalog.Store

	Gateway      *gateway.Client
	LLM          *llmclient.Client
	Transcriber  *audio.Transcriber
	Upstream     *upstreamcatalog.Client
	PauseReg     *pauseregistry.Registry
	valkeyClient valkeylib.Client

	Resolver     *resolver.Resolver
	Classifier   *classifier.Classifier
	CatalogAgent *catalogagent.Agent

	Orchestrator *orchestrator.Orchestrator
	SyncWorker   *syncworker.Worker
}

// buildApp constructs every adapter from cfg. Callers own the returned
// app's lifetime and must call Close when done.
func buildApp(cfg *config.Config) (*app, error) {
	logger := logrus.New()

	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("cmd: open database: %w", err)
	}

	convStore, err := repoconversation.New(db)
	if err != nil {
		return nil, fmt.Errorf("cmd: migrate conversation store: %w", err)
	}
	catalogStore, err := repocatalog.New(db)
	if err != nil {
		return nil, fmt.Errorf("cmd: migrate catalog store: %w", err)
	}

	llm := llmclient.New(cfg.OpenAIAPIKey, cfg.LLMMinRequestInterval, cfg.LLMMaxRetries, cfg.LLMBaseDelay)
	transcriber := audio.New(cfg.GeminiAPIKey)
	gatewayClient := gateway.New(cfg.WatiAPIURL, cfg.WatiAPIKey, logger)
	upstreamClient := upstreamcatalog.New(cfg.WatiAPIURL, cfg.WatiAPIKey)

	valkeyAddress := cfg.ValkeyAddress
	if valkeyAddress == "" {
		valkeyAddress = defaultValkeyAddress
	}
	valkeyClient, err := valkeylib.NewClient(valkeylib.ClientOption{InitAddress: []string{valkeyAddress}})
	if err != nil {
		return nil, fmt.Errorf("cmd: connect to valkey at %s: %w", valkeyAddress, err)
	}
	pauseReg := pauseregistry.New(valkeyClient)

	index, err := vectorindex.New(context.Background(), cfg.VectorStorePath, llm)
	if err != nil {
		return nil, fmt.Errorf("cmd: open vector index: %w", err)
	}

	translator := &langutil.Translator{Chat: llm}

	excluded := map[int]bool{}
	for _, id := range cfg.CatalogSyncExcludedCityIDs {
		excluded[id] = true
	}

	a := &app{
		Config:       cfg,
		Logger:       logger,
		db:           db,
		Conversation: convStore,
		Catalog:      catalogStore,
		Gateway:      gatewayClient,
		LLM:          llm,
		Transcriber:  transcriber,
		Upstream:     upstreamClient,
		PauseReg:     pauseReg,
		valkeyClient: valkeyClient,
		Resolver:     &resolver.Resolver{Index: index, Chat: llm},
		Classifier:   &classifier.Classifier{Chat: llm, Translator: translator, Feedback: convStore},
		CatalogAgent: &catalogagent.Agent{Store: catalogStore, Chat: llm},
		SyncWorker: &syncworker.Worker{
			Store:           catalogStore,
			Upstream:        upstreamClient,
			Logger:          logger,
			ExcludedCityIDs: excluded,
			DailyTime:       cfg.SyncDailyTime,
		},
	}

	a.Orchestrator = &orchestrator.Orchestrator{
		Conversation: a.Conversation,
		Pause:        a.PauseReg,
		Gateway:      a.Gateway,
		Resolver:     a.Resolver,
		Classifier:   a.Classifier,
		CatalogAgent: a.CatalogAgent,
		AllowedPhones: cfg.AllowedPhones,
	}

	return a, nil
}

// Close releases every external connection the app holds.
func (a *app) Close() error {
	a.SyncWorker.Stop()
	a.valkeyClient.Close()
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "postgres"):
		dialector = postgres.Open(cfg.DatabaseURL)
	default:
		dialector = sqlite.Open(cfg.DatabaseURL)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}
