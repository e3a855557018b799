package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/cache"
	"github.com/PeterFile/hyphae-platform/gateway"
	"github.com/PeterFile/hyphae-platform/internal/config"
	"github.com/PeterFile/hyphae-platform/mcpserver"
	"github.com/PeterFile/hyphae-platform/probe"
	"github.com/PeterFile/hyphae-platform/provider"
	"github.com/PeterFile/hyphae-platform/provider/coinbase"
	"github.com/PeterFile/hyphae-platform/provider/payai"
	"github.com/PeterFile/hyphae-platform/provider/thirdweb"
	"github.com/PeterFile/hyphae-platform/proxy"
	"github.com/PeterFile/hyphae-platform/registry"
	"github.com/PeterFile/hyphae-platform/server"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	reg := registry.New(
		registry.WithTimeout(cfg.AdapterTimeout),
		registry.WithLogger(logger),
		registry.WithObserver(gateway.ObserveAdapter),
	)

	onEvent := gateway.InvokeLogger(logger)
	px, err := proxy.New(reg,
		proxy.WithTimeout(cfg.InvokeTimeout),
		proxy.WithMaxResponseBytes(cfg.MaxResponseBytes),
		proxy.WithCallbacks(onEvent, onEvent, onEvent),
		proxy.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("proxy setup failed")
	}

	prober := probe.New(
		probe.WithTimeout(cfg.ProbeTimeout),
		probe.WithConcurrency(cfg.ProbeConcurrency),
		probe.WithTargetCheck(px.CheckTarget),
		probe.WithLogger(logger),
	)

	for _, adapter := range adapters(cfg, prober, logger) {
		if err := reg.Register(adapter); err != nil {
			logger.Fatal().Err(err).Str("provider", adapter.Name()).Msg("adapter registration failed")
		}
	}
	if len(reg.Names()) == 0 {
		logger.Warn().Msg("no providers enabled")
	}

	svc, err := gateway.New(reg, px,
		gateway.WithProber(prober),
		gateway.WithPageCache(cache.NewTTL[string, hyphae.SearchResult](cfg.CacheSize, cfg.CacheTTL)),
		gateway.WithProbeOnSearch(cfg.ProbeOnSearch),
		gateway.WithProbeConcurrency(cfg.ProbeConcurrency),
		gateway.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway setup failed")
	}

	tools := mcpserver.New(svc, "hyphae-gateway", version, logger)
	api := server.New(svc,
		server.WithLogger(logger),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithMCPHandler(tools.Handler()),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.InvokeTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Strs("providers", reg.Names()).
			Msg("starting hyphae gateway")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// adapters builds the enabled provider adapters. Thirdweb needs a secret key
// and is skipped without one.
func adapters(cfg *config.Config, prober *probe.Prober, logger zerolog.Logger) []provider.Adapter {
	var out []provider.Adapter

	if cfg.Coinbase.Enabled {
		opts := []coinbase.Option{
			coinbase.WithProber(prober),
			coinbase.WithLogger(logger.With().Str("provider", "coinbase").Logger()),
		}
		if cfg.Coinbase.BaseURL != "" {
			opts = append(opts, coinbase.WithBaseURL(cfg.Coinbase.BaseURL))
		}
		if cfg.Coinbase.APIKey != "" {
			opts = append(opts, coinbase.WithAPIKey(cfg.Coinbase.APIKey))
		}
		out = append(out, coinbase.New(opts...))
	}

	if cfg.Thirdweb.Enabled {
		if cfg.Thirdweb.APIKey == "" {
			logger.Warn().Str("provider", "thirdweb").Msg("THIRDWEB_API_KEY not set, provider disabled")
		} else {
			opts := []thirdweb.Option{
				thirdweb.WithAPIKey(cfg.Thirdweb.APIKey),
				thirdweb.WithProber(prober),
				thirdweb.WithLogger(logger.With().Str("provider", "thirdweb").Logger()),
			}
			if cfg.Thirdweb.BaseURL != "" {
				opts = append(opts, thirdweb.WithBaseURL(cfg.Thirdweb.BaseURL))
			}
			out = append(out, thirdweb.New(opts...))
		}
	}

	if cfg.PayAI.Enabled {
		opts := []payai.Option{
			payai.WithProber(prober),
			payai.WithLogger(logger.With().Str("provider", "payai").Logger()),
		}
		if cfg.PayAI.BaseURL != "" {
			opts = append(opts, payai.WithBaseURL(cfg.PayAI.BaseURL))
		}
		out = append(out, payai.New(opts...))
	}

	return out
}
