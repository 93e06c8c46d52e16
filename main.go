package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ronikos/boardmate/assistant"
	"github.com/ronikos/boardmate/config"
	"github.com/ronikos/boardmate/jira"
	"github.com/ronikos/boardmate/miro"
	"github.com/ronikos/boardmate/oauth"
	boardslack "github.com/ronikos/boardmate/slack"
	"github.com/ronikos/boardmate/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokenStore, err := store.NewFirestoreStore(ctx, cfg.GCPProjectID)
	if err != nil {
		logger.Fatal("failed to initialize Firestore store", zap.Error(err))
	}
	defer func() { _ = tokenStore.Close() }()

	slackClient := boardslack.NewClient(cfg.SlackBotToken)
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	jiraClient := jira.NewClient(cfg.JiraCloudID, logger)
	miroClient := miro.NewClient(logger)
	analyzer := miro.NewAnalyzer(openaiClient, cfg.Model, logger)

	dispatcher := assistant.NewDispatcher(tokenStore, slackClient, miroClient, analyzer, jiraClient, logger)
	orchestrator := assistant.NewOrchestrator(
		openaiClient,
		dispatcher,
		cfg.AssistantID,
		cfg.Model,
		cfg.PollInterval,
		cfg.RunTimeout,
		cfg.DownloadDir,
		logger,
	)

	miroFlow := oauth.NewMiroFlow(cfg.Miro, tokenStore, logger)
	jiraFlow := oauth.NewJiraFlow(cfg.Jira, tokenStore, logger)

	events := boardslack.NewEventsHandler(
		cfg.SlackSigningSecret,
		cfg.AppURL,
		cfg.AuthorizedUsers,
		slackClient,
		orchestrator,
		logger,
	)

	mux := http.NewServeMux()
	mux.Handle("/slack/events", events)
	mux.HandleFunc("/auth/miro", miroFlow.BeginAuthHandler())
	mux.HandleFunc("/auth/jira", jiraFlow.BeginAuthHandler())
	mux.HandleFunc("/miro/callback", miroFlow.CallbackHandler("Authorization successful. You may close this window."))
	mux.HandleFunc("/jira-callback", jiraFlow.CallbackHandler("Jira OAuth flow completed successfully."))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
