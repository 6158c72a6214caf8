package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"renobot/internal/ai"
	"renobot/internal/bot"
	"renobot/internal/cache"
	"renobot/internal/config"
	"renobot/internal/core"
	"renobot/internal/database"
	"renobot/internal/scheduler"
	"renobot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	logger.Init(cfg.LogLevel)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("database open failed")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	answerCache, err := cache.New(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer answerCache.Close()

	roles := core.NewRoleService(db)
	projects := core.NewProjectService(db)
	stages := core.NewStageService(db)
	budget := core.NewBudgetService(db, roles)
	reports := core.NewReportService(db, budget, cfg.Scheduler.PaymentGraceDays)
	resolver := core.NewResolver(db)

	aiClient := ai.NewClient(cfg.OpenAI)
	if !aiClient.Configured() {
		logger.Warn().Msg("no OpenAI key: /ask, /parse and media transcription disabled")
	}
	embeddings := ai.NewEmbeddingService(db, aiClient)
	assistant := ai.NewAssistant(db, aiClient, embeddings, answerCache)
	parser := ai.NewParser(aiClient)

	tg, err := bot.New(cfg.Telegram, bot.Deps{
		DB:         db,
		Resolver:   resolver,
		Projects:   projects,
		Stages:     stages,
		Budget:     budget,
		Roles:      roles,
		Reports:    reports,
		AIClient:   aiClient,
		Assistant:  assistant,
		Parser:     parser,
		Embeddings: embeddings,
		Cache:      answerCache,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram init failed")
	}

	sched := scheduler.New(db, budget, cfg.Scheduler, tg.Notify)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("bot running")
	tg.Run(ctx)
	logger.Info().Msg("bot stopped")
}
