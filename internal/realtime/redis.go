package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/pkg/event"
)

// DefaultRedisChannel はプロセス間配信に使うPub/Subチャネル名。
const DefaultRedisChannel = "breakout:realtime:deliver"

// relayMessage はRedis上を流れる配信メッセージ。
type relayMessage struct {
	UserID   string          `json:"user_id"`
	Envelope json.RawMessage `json:"envelope"`
}

// DialRedis はURLからRedisクライアントを生成し、疎通を確認する。
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return client, nil
}

// RedisBridge はRedis Pub/Subを介して全プロセスへ配信する。
// Deliverで発行し、Runで購読したメッセージをローカルのチャネルへ流す。
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   *LocalDelivery
	logger  zerolog.Logger
}

// NewRedisBridge はRedisBridgeを生成する。
func NewRedisBridge(client *redis.Client, local *LocalDelivery, logger zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: DefaultRedisChannel,
		local:   local,
		logger:  logger,
	}
}

// Deliver はエンベロープをRedisへ発行する。
// 発行に失敗した場合は、少なくともこのプロセスの接続には届くようローカル配信に切り替える。
func (b *RedisBridge) Deliver(ctx context.Context, userID string, env *event.Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	msg, err := json.Marshal(relayMessage{UserID: userID, Envelope: payload})
	if err != nil {
		return fmt.Errorf("配信メッセージのシリアライズに失敗: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, msg).Err(); err != nil {
		b.logger.Warn().Err(err).Str("user_id", userID).Msg("Redisへの発行に失敗したためローカル配信します")
		b.local.Send(userID, payload)
		return nil
	}
	return nil
}

// Run は配信チャネルを購読し、ctxがキャンセルされるまで受信メッセージをローカル配信する。
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("Redisの購読に失敗: %w", err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("Redisの購読を開始しました")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) handle(raw []byte) {
	var msg relayMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.logger.Warn().Err(err).Msg("不正な配信メッセージを無視しました")
		return
	}
	if msg.UserID == "" || len(msg.Envelope) == 0 {
		b.logger.Warn().Msg("宛先またはエンベロープのない配信メッセージを無視しました")
		return
	}
	b.local.Send(msg.UserID, msg.Envelope)
}
