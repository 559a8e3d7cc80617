// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	bridgeApi "github.com/voxbridgeai/api/bridge-api/api"
	internal_audio "github.com/voxbridgeai/api/bridge-api/internal/audio"
	internal_callmanager "github.com/voxbridgeai/api/bridge-api/internal/callmanager"
	internal_contextstore "github.com/voxbridgeai/api/bridge-api/internal/contextstore"
	internal_gateway "github.com/voxbridgeai/api/bridge-api/internal/gateway"
	internal_routing "github.com/voxbridgeai/api/bridge-api/internal/routing"
	internal_session "github.com/voxbridgeai/api/bridge-api/internal/session"
	internal_store "github.com/voxbridgeai/api/bridge-api/internal/store"
	internal_synthesizer_google "github.com/voxbridgeai/api/bridge-api/internal/synthesizer/google"
	internal_upstream "github.com/voxbridgeai/api/bridge-api/internal/upstream"
	internal_upstream_google "github.com/voxbridgeai/api/bridge-api/internal/upstream/google"
	bridge_routers "github.com/voxbridgeai/api/routers"
	"github.com/voxbridgeai/config"
	"github.com/voxbridgeai/pkg/commons"
	"github.com/voxbridgeai/pkg/connectors"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to initialize config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("failed to load application config: %v", err)
	}

	logger, err := commons.NewApplicationLogger()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("bridge-api exited: %v", err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) error {
	// Persistence is optional; without it routing fails open and nothing is
	// recorded, which is the right posture for a dev box.
	var store internal_store.Store
	if cfg.EnablePersistence {
		postgres, err := connectors.NewPostgresConnector(cfg.PostgresConfig, logger)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer postgres.Close()

		store = internal_store.NewStore(postgres, logger)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	contexts, err := buildContextStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dialer, err := internal_upstream_google.NewLiveDialer(ctx, logger, cfg.GoogleApiKey)
	if err != nil {
		return fmt.Errorf("upstream dialer: %w", err)
	}

	poolCfg := internal_session.Config{
		Model:             cfg.DefaultModel,
		Voice:             cfg.DefaultVoice,
		SystemInstruction: cfg.DefaultInstruction,
		Timeout:           time.Duration(cfg.SessionTimeoutSec) * time.Second,

		EnableInputTranscription:  cfg.EnableTranscription,
		EnableOutputTranscription: cfg.EnableTranscription,
	}

	var poolOpts []internal_session.PoolOption
	if cfg.HybridTextOutputMode {
		poolCfg.OutputMode = internal_upstream.OutputModeText
		synth, err := internal_synthesizer_google.NewGoogleSynthesizer(ctx, logger, cfg.GoogleApiKey)
		if err != nil {
			return fmt.Errorf("synthesizer: %w", err)
		}
		poolOpts = append(poolOpts, internal_session.WithSynthesizer(synth))
	}

	pool := internal_session.NewPool(logger, dialer, poolCfg,
		cfg.MaxSessions, time.Duration(cfg.AdmissionTimeoutSec)*time.Second, poolOpts...)
	manager := internal_callmanager.NewManager(logger, pool)

	var directory internal_routing.Directory = store
	if store == nil {
		directory = statelessDirectory{}
	}
	router := internal_routing.NewRouter(logger, directory)

	handler := internal_gateway.NewHandler(logger, manager, router, store, contexts, internal_gateway.Options{
		AudioFormat:       internal_audio.Format(cfg.GatewayAudioFormat),
		EnableRecording:   cfg.EnableCallRecording,
		RecordingDir:      cfg.RecordingDir,
		EnableTranscripts: cfg.EnableTranscription,
	})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api := bridgeApi.NewBridgeApi(cfg, logger, handler, pool, manager)
	bridge_routers.BridgeApiRoute(cfg, engine, logger, api)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("bridge-api listening: addr=%s sessions=%d", server.Addr, cfg.MaxSessions)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down bridge-api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown incomplete", "error", err.Error())
	}

	manager.TeardownAll()
	pool.TeardownAll(shutdownCtx)
	return nil
}

func buildContextStore(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) (internal_contextstore.Store, error) {
	ttl := time.Duration(cfg.ContextTTLSec) * time.Second
	if !cfg.UseRedisContextStore {
		return internal_contextstore.NewMemoryStore(logger, ttl), nil
	}
	redis, err := connectors.NewRedisConnector(ctx, cfg.RedisConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return internal_contextstore.NewRedisStore(redis, logger, ttl), nil
}

// statelessDirectory backs routing when persistence is disabled: every
// gateway is unknown, so every call is answered.
type statelessDirectory struct{}

func (statelessDirectory) GetDevice(context.Context, string) (*internal_routing.Device, error) {
	return nil, nil
}
func (statelessDirectory) GetContactByNumber(context.Context, uint64, string) (*internal_routing.Contact, error) {
	return nil, nil
}
func (statelessDirectory) ListActiveRules(context.Context, uint64) ([]internal_routing.Rule, error) {
	return nil, nil
}
