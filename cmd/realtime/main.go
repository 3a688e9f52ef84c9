// リアルタイム配信サービスのエントリポイント。
// いいね・コメント・フォローの通知とダイレクトメッセージを保存し、
// 接続中のユーザーのWebSocketへプッシュする。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/config"
	"github.com/breakoutarea/realtime/internal/directory"
	"github.com/breakoutarea/realtime/internal/logging"
	"github.com/breakoutarea/realtime/internal/message"
	"github.com/breakoutarea/realtime/internal/notification"
	"github.com/breakoutarea/realtime/internal/readstate"
	"github.com/breakoutarea/realtime/internal/realtime"
	"github.com/breakoutarea/realtime/internal/server"
	"github.com/breakoutarea/realtime/internal/store"
	"github.com/breakoutarea/realtime/pkg/httpclient"
)

func main() {
	// .envがなくても環境変数だけで起動できる
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg(".envファイルを読み込みませんでした")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("リアルタイム配信サービスが異常終了しました")
		os.Exit(1)
	}
	logger.Info().Msg("リアルタイム配信サービスを停止しました")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	st, err := store.Open(ctx, cfg.DatabasePath, logging.Component(logger, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	var dir directory.Directory = directory.NewStatic()
	if cfg.DirectoryURL != "" {
		opts := []httpclient.Option{httpclient.WithTimeout(3 * time.Second)}
		if cfg.DirectoryToken != "" {
			opts = append(opts, httpclient.WithBearerToken(cfg.DirectoryToken))
		}
		dir = directory.NewHTTP(httpclient.New(cfg.DirectoryURL, opts...))
	} else {
		logger.Warn().Msg("DIRECTORY_URLが未設定のためユーザー・投稿はIDのみで配信します")
	}

	registry := realtime.NewRegistry(logging.Component(logger, "registry"))
	local := realtime.NewLocalDelivery(registry, logging.Component(logger, "delivery"))

	var deliverer realtime.Deliverer = local
	if cfg.RedisURL != "" {
		client, err := realtime.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := realtime.NewRedisBridge(client, local, logging.Component(logger, "redis"))
		deliverer = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Redisの購読が停止しました")
			}
		}()
	}

	pusher := realtime.NewPusher(deliverer, cfg.PushWorkers, cfg.PushQueueSize, logging.Component(logger, "pusher"))
	pusher.Start(ctx)
	defer pusher.Stop()

	srv := server.New(server.Deps{
		Dispatcher: notification.NewDispatcher(st, dir, pusher, logging.Component(logger, "notification")),
		Relay:      message.NewRelay(st, dir, pusher, logging.Component(logger, "message")),
		Tracker:    readstate.NewTracker(st, logging.Component(logger, "readstate")),
		Registry:   registry,
		Pusher:     pusher,
		Store:      st,
		Logger:     logging.Component(logger, "http"),
	}, server.Options{
		Port:            cfg.Port,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		DevTokens:       cfg.DevTokens,
		WSSendBuffer:    cfg.WSSendBuffer,
		WSInboundRate:   cfg.WSInboundRate,
		WSInboundBurst:  cfg.WSInboundBurst,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	logger.Info().
		Str("port", cfg.Port).
		Bool("redis", cfg.RedisURL != "").
		Int("push_workers", cfg.PushWorkers).
		Msg("リアルタイム配信サービスを起動します")
	return srv.Run(ctx)
}
