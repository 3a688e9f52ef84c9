package realtime

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/pkg/event"
)

// LocalDelivery はこのプロセスのRegistryに登録されたチャネルへ直接配信する。
type LocalDelivery struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewLocalDelivery はLocalDeliveryを生成する。
func NewLocalDelivery(registry *Registry, logger zerolog.Logger) *LocalDelivery {
	return &LocalDelivery{registry: registry, logger: logger}
}

// Deliver はエンベロープを一度だけシリアライズし、ユーザーの全チャネルへ送る。
// オフラインのユーザーへの配信はエラーにならない。
func (d *LocalDelivery) Deliver(_ context.Context, userID string, env *event.Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	n := d.Send(userID, payload)
	d.logger.Debug().
		Str("user_id", userID).
		Str("event_id", env.ID).
		Str("event_type", string(env.Type)).
		Int("channels", n).
		Msg("イベントを配信しました")
	return nil
}

// Send はシリアライズ済みのペイロードをユーザーの全チャネルへ送り、成功数を返す。
// 送信に失敗したチャネルは他のチャネルに影響させず登録解除して閉じる。
func (d *LocalDelivery) Send(userID string, payload []byte) int {
	sent := 0
	for _, ch := range d.registry.ChannelsFor(userID) {
		if err := ch.Send(payload); err != nil {
			d.logger.Warn().Err(err).Str("user_id", userID).Str("channel_id", ch.ID()).Msg("チャネルへの送信に失敗しました")
			d.registry.Unregister(ch)
			ch.Close(websocket.CloseInternalServerErr, "delivery failed")
			continue
		}
		sent++
	}
	return sent
}
