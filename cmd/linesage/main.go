package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/classifier"
	"github.com/linesage/linesage/internal/config"
	"github.com/linesage/linesage/internal/experts"
	"github.com/linesage/linesage/internal/handlers"
	"github.com/linesage/linesage/internal/moderator"
	"github.com/linesage/linesage/internal/monitoring"
	"github.com/linesage/linesage/internal/retrieval"
	"github.com/linesage/linesage/internal/services"
	"github.com/linesage/linesage/internal/session"
	"github.com/linesage/linesage/internal/workflow"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store := buildSessionStore(cfg, log)

	vector := retrieval.NewChromaStore(cfg.Retrieval.ChromaURL, cfg.Retrieval.ChromaCollection)
	keyword := retrieval.NewElasticStore(cfg.Retrieval.ElasticURL, cfg.Retrieval.ElasticIndex)
	provider := retrieval.NewProvider(vector, keyword, log)

	bounds := experts.ConfidenceBounds{
		Floor:   cfg.Workflow.ConfidenceFloor,
		Ceiling: cfg.Workflow.ConfidenceCeiling,
	}
	pool := []experts.Expert{
		experts.NewGPTExpert(cfg.Experts.OpenAI, bounds, log),
		experts.NewGeminiExpert(cfg.Experts.Gemini, bounds, log),
		experts.NewClovaExpert(cfg.Experts.Clova, bounds, log),
	}
	claude := experts.NewClaudeExpert(cfg.Experts.Anthropic, bounds, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	monitor := monitoring.New(reg)

	mod := moderator.New(claude, log)
	mod.OnParseFailure(monitor.ParseFailed)
	mod.SetMinDebate(cfg.Workflow.MinExpertsForDebate)

	engine := workflow.NewEngine(classifier.New(provider, log), mod, pool, cfg.Workflow, log)
	engine.SetHooks(workflow.Hooks{
		ExpertFailure: monitor.ExpertFailed,
		ExpertLatency: monitor.ExpertLatency,
	})

	chat := services.NewChatService(store, engine, cfg.Workflow, log)
	chat.SetObserver(monitor)

	router := handlers.NewRouter(chat, store, provider, monitor, reg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, store, cfg.Session, log)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router.Setup(),
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
}

// buildSessionStore prefers Redis when an address is configured and falls
// back to the in-process store otherwise.
func buildSessionStore(cfg *config.Config, log *logrus.Logger) session.Store {
	if cfg.Redis.Addr == "" {
		log.Info("using in-memory session store")
		return session.NewMemoryStore(cfg.Session.MaxHistoryTurns)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, using in-memory session store")
		return session.NewMemoryStore(cfg.Session.MaxHistoryTurns)
	}

	log.WithField("addr", cfg.Redis.Addr).Info("using redis session store")
	return session.NewRedisStore(client, cfg.Session.MaxHistoryTurns)
}

// sweepSessions periodically ends sessions idle past the configured timeout.
func sweepSessions(ctx context.Context, store session.Store, cfg config.SessionConfig, log *logrus.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.SweepExpired(ctx, time.Now().UTC(), cfg.IdleTimeout)
			if err != nil {
				log.WithError(err).Warn("session sweep failed")
				continue
			}
			if n > 0 {
				log.WithField("ended", n).Info("idle sessions ended")
			}
		}
	}
}
