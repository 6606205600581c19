package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"taskdispatch/internal/audit"
	"taskdispatch/internal/db"
	"taskdispatch/internal/engine"
	"taskdispatch/internal/handlers"
	"taskdispatch/internal/logx"
	"taskdispatch/internal/oauth"
	"taskdispatch/internal/secrets"
	"taskdispatch/internal/settings"
	"taskdispatch/internal/token"
)

func resolveDBPath(p string) string {
	info, err := os.Stat(p)
	if err == nil && info.IsDir() {
		return filepath.Join(p, "taskdispatch.db")
	}
	return p
}

func ensureFile(p string) error {
	info, err := os.Stat(p)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", p)
		}
		return nil
	}
	if os.IsNotExist(err) {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o666)
		if err != nil {
			return err
		}
		return f.Close()
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("env", key).Str("value", v).Msg("invalid duration, using default")
		return def
	}
	return d
}

func main() {
	log.Logger = log.Output(zerolog.New(logx.NewRedactor(os.Stdout)).With().Timestamp().Logger())

	path := resolveDBPath(envOr("TASKDISPATCH_DB_PATH", "taskdispatch.db"))
	if err := ensureFile(path); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("create db file")
	}

	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=foreign_keys(1)", path))
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer sqlDB.Close()

	if err := db.Migrate(sqlDB); err != nil {
		log.Fatal().Err(err).Msg("migrate db")
	}

	ctx := context.Background()
	km, err := secrets.Load(ctx, sqlDB)
	if err != nil {
		log.Fatal().Err(err).Msg("load master key")
	}

	secretsSvc := secrets.NewService(sqlDB, envOr("TASKDISPATCH_KEY_PATH", ""))
	token.Init(secretsSvc)

	oauthSvc := oauth.New(sqlDB, km)

	settingsStore := settings.New(sqlDB)

	auditors := audit.Multi{audit.NewSQLiteStore(sqlDB, km)}
	if cfg, ok := loadAuditConfig(); ok {
		httpAuditor, err := audit.NewHTTPClient(cfg, oauthSvc)
		if err != nil {
			log.Warn().Err(err).Msg("audit http client disabled")
		} else {
			auditors = append(auditors, httpAuditor)
			log.Info().Str("base_url", cfg.BaseURL).Msg("forwarding audit events remotely")
		}
	}

	cfg := engine.Config{
		HeartbeatTimeout: loadDurationSetting(ctx, settingsStore, "heartbeat_timeout_seconds", envDuration("TASKDISPATCH_HEARTBEAT_TIMEOUT", engine.DefaultHeartbeatTimeout)),
		SweepInterval:    loadDurationSetting(ctx, settingsStore, "sweep_interval_seconds", envDuration("TASKDISPATCH_SWEEP_INTERVAL", engine.DefaultSweepInterval)),
	}

	e := engine.New(cfg, nil, auditors)

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	stopSweeper := e.StartSweeper(sweepCtx)

	router := chi.NewRouter()
	handlers.Mount(router, e, envOr("TASKDISPATCH_TOKEN_SECRET", ""), sqlDB)

	addr := ":" + envOr("TASKDISPATCH_PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info().Str("addr", addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopSweeper(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}

func loadAuditConfig() (audit.Config, bool) {
	cfg := audit.Config{
		BaseURL:      os.Getenv("TASKDISPATCH_AUDIT_BASE_URL"),
		ClientID:     os.Getenv("TASKDISPATCH_AUDIT_CLIENT_ID"),
		ClientSecret: os.Getenv("TASKDISPATCH_AUDIT_CLIENT_SECRET"),
		Scope:        envOr("TASKDISPATCH_AUDIT_SCOPE", "audit.write"),
	}
	if cfg.BaseURL == "" {
		return audit.Config{}, false
	}
	return cfg, true
}

// loadDurationSetting prefers a runtime-adjustable app_settings value (set
// via an operator tool, not modeled here) over the process env, falling
// back to def when neither is present or the stored value won't parse.
func loadDurationSetting(ctx context.Context, store *settings.Store, key string, def time.Duration) time.Duration {
	v, err := store.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	secs, err := time.ParseDuration(v + "s")
	if err != nil {
		return def
	}
	return secs
}
