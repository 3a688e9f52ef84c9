package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Channel はユーザーへの配信チャネル（WebSocket接続など）を表す。
type Channel interface {
	// ID はチャネルの一意識別子を返す。
	ID() string
	// Send はペイロードを送信キューに積む。ブロックしてはならない。
	Send(payload []byte) error
	// Close はチャネルを閉じる。複数回呼び出しても安全でなければならない。
	Close(code int, reason string)
}

// Registry はユーザーIDと配信チャネルの対応を管理する。
// 配信の宛先単位は接続ではなくユーザーであり、1ユーザーが0個以上のチャネルを持つ。
type Registry struct {
	mu sync.RWMutex
	// users はユーザーIDからチャネルID→チャネルへの対応。
	users map[string]map[string]Channel
	// owners はチャネルIDから所有ユーザーIDへの逆引き。切断通知はチャネルしか持たないため。
	owners map[string]string
	logger zerolog.Logger
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		users:  make(map[string]map[string]Channel),
		owners: make(map[string]string),
		logger: logger,
	}
}

// Register はチャネルをユーザーの配信先に加える。冪等。
// 既に別ユーザーに登録されているチャネルは後勝ちで付け替える。
func (r *Registry) Register(userID string, ch Channel) {
	id := ch.ID()

	r.mu.Lock()
	if prev, ok := r.owners[id]; ok && prev != userID {
		r.removeLocked(prev, id)
	}
	set := r.users[userID]
	if set == nil {
		set = make(map[string]Channel)
		r.users[userID] = set
	}
	set[id] = ch
	r.owners[id] = userID
	count := len(set)
	r.mu.Unlock()

	r.logger.Debug().Str("user_id", userID).Str("channel_id", id).Int("channels", count).Msg("チャネルを登録しました")
}

// Unregister はチャネルを所有ユーザーの配信先から外す。
// 未登録のチャネルは何もしない。外した場合はtrueを返す。
func (r *Registry) Unregister(ch Channel) bool {
	id := ch.ID()

	r.mu.Lock()
	userID, ok := r.owners[id]
	if ok {
		r.removeLocked(userID, id)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug().Str("user_id", userID).Str("channel_id", id).Msg("チャネルを登録解除しました")
	}
	return ok
}

// ChannelsFor はユーザーの現在のチャネル一覧のスナップショットを返す。
// 空の場合はオフラインを意味し、エラーではない。
func (r *Registry) ChannelsFor(userID string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Channel, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	return out
}

// Len は登録されているチャネルの総数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

// Users は1つ以上のチャネルを持つユーザー数を返す。
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Close はすべてのチャネルを閉じて登録を空にする。プロセス終了時に呼ぶ。
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]Channel, 0, len(r.owners))
	for _, set := range r.users {
		for _, ch := range set {
			all = append(all, ch)
		}
	}
	r.users = make(map[string]map[string]Channel)
	r.owners = make(map[string]string)
	r.mu.Unlock()

	for _, ch := range all {
		ch.Close(websocket.CloseGoingAway, "server shutdown")
	}
	r.logger.Info().Int("channels", len(all)).Msg("全チャネルを閉じました")
}

func (r *Registry) removeLocked(userID, channelID string) {
	delete(r.owners, channelID)
	set := r.users[userID]
	if set == nil {
		return
	}
	delete(set, channelID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}
