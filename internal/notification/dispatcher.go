package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/directory"
	"github.com/breakoutarea/realtime/internal/domain"
	"github.com/breakoutarea/realtime/internal/realtime"
	"github.com/breakoutarea/realtime/pkg/event"
)

// DefaultListLimit は通知一覧で返す最大件数。
const DefaultListLimit = 50

// Store は通知の永続化を担う。
type Store interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	ListUnreadNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
}

// Pusher は受信者へのプッシュ配信をキューに積む。
type Pusher interface {
	Push(userID string, build realtime.BuildFunc) bool
}

// Dispatcher は通知の作成と配信を行う。
type Dispatcher struct {
	store     Store
	directory directory.Directory
	pusher    Pusher
	logger    zerolog.Logger

	// mu は保存とキュー投入を一組で直列化し、配信順を保存順(seq)と一致させる。
	mu sync.Mutex
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(store Store, dir directory.Directory, pusher Pusher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		directory: dir,
		pusher:    pusher,
		logger:    logger,
	}
}

// Notify は受信者への通知を作成し、プッシュ配信を予約する。
//
// 受信者と操作者が同じ場合は何もせず (nil, nil) を返す。
// 永続化が完了した時点で戻り、配信の成否は待たない。同一内容の呼び出しでも重複排除はしない。
func (d *Dispatcher) Notify(ctx context.Context, recipientID string, kind domain.Kind, sourceUserID, postID string) (*domain.Notification, error) {
	if recipientID != "" && recipientID == sourceUserID {
		d.logger.Debug().Str("user_id", recipientID).Str("kind", string(kind)).Msg("自分自身への通知はスキップします")
		return nil, nil
	}
	if err := validate(recipientID, kind, sourceUserID); err != nil {
		return nil, err
	}

	n := &domain.Notification{
		RecipientID:  recipientID,
		Kind:         kind,
		SourceUserID: sourceUserID,
		PostID:       postID,
	}
	d.mu.Lock()
	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.mu.Unlock()
		d.logger.Error().Err(err).Str("recipient_id", recipientID).Str("kind", string(kind)).Msg("通知の保存に失敗しました")
		return nil, err
	}

	// ワーカー側で付加情報を埋めるため、呼び出し元に返す値とは別のコピーを渡す
	pushed := *n
	d.pusher.Push(recipientID, func(ctx context.Context) (*event.Envelope, error) {
		d.enrich(ctx, &pushed)
		return event.New(event.TypeNotificationNew, &pushed)
	})
	d.mu.Unlock()

	d.logger.Info().
		Str("notification_id", n.ID).
		Str("recipient_id", recipientID).
		Str("source_user_id", sourceUserID).
		Str("kind", string(kind)).
		Msg("通知を作成しました")
	return n, nil
}

// Recent は受信者の最新の通知を付加情報付きで新しい順に返す。
func (d *Dispatcher) Recent(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	list, err := d.store.ListNotifications(ctx, recipientID, limit)
	if err != nil {
		return nil, err
	}
	d.enrichAll(ctx, list)
	return list, nil
}

// Unread は受信者の未読通知を付加情報付きで新しい順に最大DefaultListLimit件返す。
// 件数は未読件数APIで別途取得できる。
func (d *Dispatcher) Unread(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	list, err := d.store.ListUnreadNotifications(ctx, recipientID, DefaultListLimit)
	if err != nil {
		return nil, err
	}
	d.enrichAll(ctx, list)
	return list, nil
}

func (d *Dispatcher) enrich(ctx context.Context, n *domain.Notification) {
	n.SourceUser = directory.ResolveUser(ctx, d.directory, n.SourceUserID, d.logger)
	n.Post = directory.ResolvePost(ctx, d.directory, n.PostID, d.logger)
}

// enrichAll は一覧の各通知に付加情報を埋める。同じユーザー・投稿の解決は1回にまとめる。
func (d *Dispatcher) enrichAll(ctx context.Context, list []domain.Notification) {
	users := make(map[string]*domain.UserSummary)
	posts := make(map[string]*domain.PostSummary)
	for i := range list {
		n := &list[i]
		u, ok := users[n.SourceUserID]
		if !ok {
			u = directory.ResolveUser(ctx, d.directory, n.SourceUserID, d.logger)
			users[n.SourceUserID] = u
		}
		n.SourceUser = u

		if n.PostID == "" {
			continue
		}
		p, ok := posts[n.PostID]
		if !ok {
			p = directory.ResolvePost(ctx, d.directory, n.PostID, d.logger)
			posts[n.PostID] = p
		}
		n.Post = p
	}
}

func validate(recipientID string, kind domain.Kind, sourceUserID string) error {
	switch {
	case recipientID == "":
		return domain.NewValidationError("recipient_id", "受信者IDが必要です")
	case sourceUserID == "":
		return domain.NewValidationError("source_user_id", "操作者IDが必要です")
	case !kind.Valid():
		return domain.NewValidationError("type", "通知種別が不正です: "+string(kind))
	}
	return nil
}
