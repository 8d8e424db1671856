package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/park285/chess-room/internal/boardimg"
	appcfg "github.com/park285/chess-room/internal/config"
	"github.com/park285/chess-room/internal/dispatch"
	"github.com/park285/chess-room/internal/httpapi"
	"github.com/park285/chess-room/internal/mirror"
	"github.com/park285/chess-room/internal/msgcat"
	"github.com/park285/chess-room/internal/notify"
	"github.com/park285/chess-room/internal/obslog"
	"github.com/park285/chess-room/internal/results"
	"github.com/park285/chess-room/internal/room"
	"github.com/park285/chess-room/internal/rules"
	"github.com/park285/chess-room/internal/wsgate"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}
	texts, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 결과/상태 외부 전달 (모두 선택)
	disp := dispatch.New(256, 3*time.Second)
	var recent httpapi.ResultLister
	if cfg.RedisURL != "" {
		store, err := mirror.Open(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis init error", zap.Error(err))
		}
		defer store.Close()
		disp.AddStateSink("redis", store)
		disp.AddResultSink("redis", store)
		recent = store
	}
	if cfg.DatabaseURL != "" {
		repo, err := results.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres init error", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema error", zap.Error(err))
		}
		disp.AddResultSink("postgres", repo)
	}
	if cfg.ResultWebhookURL != "" {
		var opts []notify.Option
		if cfg.ResultWebhookToken != "" {
			opts = append(opts, notify.WithSecret(cfg.ResultWebhookToken))
		}
		disp.AddResultSink("webhook", notify.NewWebhook(cfg.ResultWebhookURL, opts...))
	}
	dispCtx, stopDispatch := context.WithCancel(context.Background())
	go disp.Run(dispCtx)

	gw := wsgate.New(wsgate.Options{
		SendBuffer:     cfg.SendBuffer,
		PingInterval:   cfg.PingInterval,
		PingTimeout:    cfg.PingTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	session := room.NewSession(rules.NewChessOracle(), gw, room.Options{
		ClockInterval:   cfg.ClockInterval,
		DefaultBaseMins: cfg.DefaultBaseMins,
		DefaultInc:      cfg.DefaultInc,
		NameMaxRunes:    cfg.NameMaxRunes,
		Texts:           texts,
		Observer:        disp,
		Logger:          logger,
	})
	gw.Bind(session)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.NewRouter(httpapi.Deps{
			Room:      session,
			WS:        gw,
			Board:     boardimg.New(0),
			Results:   recent,
			StaticDir: cfg.StaticDir,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chess_room_listening", zap.String("addr", srv.Addr), zap.String("static_dir", cfg.StaticDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("http_server_error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ws_shutdown_error", zap.Error(err))
	}
	session.Close()
	stopDispatch()
	disp.Wait()
	logger.Info("chess_room_stopped", zap.Int64("dispatch_dropped", disp.Dropped()))
}
