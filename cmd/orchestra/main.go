// Command orchestra runs the banking assistant gateway: the agent tree, the
// approval gate, the remote financial-data client, and the websocket/HTTP
// server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/agents"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/approval"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/config"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/logx"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/planner"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/remote"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/server"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/store"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/tools"
)

func main() {
	cfg := config.MustLoad()
	logx.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func run(cfg *config.Config) error {
	registry := engine.NewRegistry()
	bank := tools.NewBank()
	if err := agents.Register(registry, bank, cfg.FinancialAgentCardURL); err != nil {
		return err
	}

	var plan engine.Planner
	if cfg.AnthropicAPIKey != "" {
		plan = planner.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, logx.With("planner"))
		log.Info().Str("model", cfg.AnthropicModel).Msg("using llm planner")
	} else {
		plan = planner.NewRules(logx.With("planner"))
		log.Info().Msg("no api key configured, using rules planner")
	}

	resolver, err := remote.NewCardResolver(nil, 5*time.Minute)
	if err != nil {
		return err
	}
	remoteClient := remote.NewClient(resolver, cfg.RemoteTimeout, logx.With("remote"))

	gate := approval.NewGate(cfg.ApprovalTimeout, logx.With("approval"))
	dispatcher := engine.NewDispatcher(registry, plan, gate, remoteClient, cfg.MaxDelegationDepth, logx.With("dispatcher"))
	router := engine.NewRouter(registry, dispatcher, agents.RootAgentName, logx.With("router"))

	conversations := store.NewConversations()
	gateway := server.New(router, gate, conversations, cfg.RemoteTimeout, logx.With("server"))

	if cfg.InsightsSchedule != "" {
		insights := agents.NewInsightsScheduler(router, func(d agents.Digest) {
			log.Info().Str("user_id", d.UserID).Str("digest", d.Text).Msg("proactive insights digest")
		}, logx.With("insights"))
		if err := insights.Start(cfg.InsightsSchedule); err != nil {
			return err
		}
		defer insights.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
