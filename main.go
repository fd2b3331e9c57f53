package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	fintalkagent "github.com/fintalk/server/internal/agent"
	agentmodel "github.com/fintalk/server/internal/agent/model"
	"github.com/fintalk/server/internal/core"
	"github.com/fintalk/server/internal/embedding"
	fintalkhttp "github.com/fintalk/server/internal/http"
	"github.com/fintalk/server/internal/ingest"
	"github.com/fintalk/server/internal/store"
	"github.com/fintalk/server/internal/vector"
	pkgbedrock "github.com/fintalk/server/pkg/bedrock"
	logx "github.com/fintalk/server/pkg/logger"
	pkgopensearch "github.com/fintalk/server/pkg/opensearch"
	pkgpostgres "github.com/fintalk/server/pkg/postgres"
)

// AppConfig defines all configurable parameters for the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	ServerAddr  string `envconfig:"SERVER_ADDR" default:":8000"`

	// Infrastructure
	Postgres   pkgpostgres.Config
	OpenSearch pkgopensearch.Config
	Bedrock    pkgbedrock.Config

	// Model configs
	Embedding embedding.Config
	Agent     agentmodel.AgentConfig
}

func main() {
	seed := flag.Bool("seed", false, "reset and seed the cardholder table, then exit")
	flag.Parse()

	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})

	db, err := cfg.Postgres.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise database handle")
	}
	cards := store.New(db)

	if *seed {
		if err := cards.AutoMigrate(); err != nil {
			logx.Fatal().Err(err).Msg("migration failed")
		}
		if err := cards.Seed(ctx); err != nil {
			logx.Fatal().Err(err).Msg("seeding failed")
		}
		logx.Info().Msg("cardholder table seeded")
		os.Exit(0)
	}

	if err := cards.AutoMigrate(); err != nil {
		logx.Warn().Err(err).Msg("migration failed; continuing, health probe will report")
	}

	osClient, err := cfg.OpenSearch.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise opensearch client")
	}
	index := vector.NewIndex(osClient, cfg.OpenSearch.Index, cfg.Embedding.Dimensions)

	// The Bedrock client and the agent may fail to initialise (e.g. missing
	// AWS credentials). The service still starts: agent endpoints report
	// SERVICE_UNAVAILABLE and the health probe flags the dependency.
	var delegate agentmodel.Delegate
	bedrockReady := false

	bedrockClient, err := cfg.Bedrock.New(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("failed to initialise bedrock client; agent disabled")
	} else {
		bedrockReady = true
	}

	var embedder embedding.Embedder
	if bedrockClient != nil {
		embedder = embedding.NewBedrock(bedrockClient, cfg.Embedding)
	}

	if bedrockReady {
		agent, errAgent := fintalkagent.New(ctx, cfg.Agent, fintalkagent.Dependencies{
			Bedrock:  bedrockClient,
			Embedder: embedder,
			Searcher: index,
			Cards:    cards,
		})
		if errAgent != nil {
			logx.Error().Err(errAgent).Msg("agent initialisation failed; query endpoints degraded")
		} else {
			delegate = agent
		}
	}

	var pipeline fintalkhttp.Ingester
	if embedder != nil {
		pipeline = ingest.NewPipeline(embedder, index)
	}

	router := fintalkhttp.NewRouter(fintalkhttp.RouterConfig{
		Environment:  env,
		DB:           cards,
		Vector:       index,
		BedrockReady: bedrockReady,
		Pipeline:     pipeline,
		Delegate:     delegate,
	})

	logx.Info().Str("addr", cfg.ServerAddr).Str("environment", env.String()).Msg("starting server")
	if err := router.Run(cfg.ServerAddr); err != nil {
		logx.Fatal().Err(err).Msg("server exited")
	}
}
