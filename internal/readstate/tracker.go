// Package readstate は通知とメッセージの既読状態を管理する。
//
// 未読件数は常に is_read フラグから集計し、別途カウンタを持たない。
// 既読フラグは false から true へのみ遷移するため、既読処理は冪等である。
package readstate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/domain"
)

// Store は既読状態の読み書きを担う。
type Store interface {
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id string) (int64, error)
	MarkConversationRead(ctx context.Context, recipientID, counterpartID string) (int64, error)
	UnreadMessageCounts(ctx context.Context, recipientID string) (map[string]int64, error)
}

// Tracker は既読処理と未読件数の集計を行う。
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker はTrackerを生成する。
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// MarkAllNotificationsRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (t *Tracker) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.NewValidationError("user_id", "ユーザーIDが必要です")
	}
	n, err := t.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	t.logger.Debug().Str("user_id", userID).Int64("updated", n).Msg("全通知を既読にしました")
	return n, nil
}

// MarkNotificationRead はユーザー自身の通知1件を既読にする。
// 存在しない場合は domain.ErrNotFound、他人の通知の場合は domain.ErrForbidden を返す。
func (t *Tracker) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	if notificationID == "" {
		return domain.NewValidationError("id", "通知IDが必要です")
	}
	n, err := t.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.RecipientID != userID {
		return domain.ErrForbidden
	}
	if _, err := t.store.MarkNotificationRead(ctx, notificationID); err != nil {
		return err
	}
	return nil
}

// UnreadNotificationCount はユーザーの未読通知件数を返す。
func (t *Tracker) UnreadNotificationCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.NewValidationError("user_id", "ユーザーIDが必要です")
	}
	return t.store.CountUnreadNotifications(ctx, userID)
}

// MarkConversationRead はcounterpartIDからユーザーへの未読メッセージを既読にし、更新件数を返す。
// ユーザー自身が送ったメッセージは変更しない。
func (t *Tracker) MarkConversationRead(ctx context.Context, userID, counterpartID string) (int64, error) {
	if userID == "" || counterpartID == "" {
		return 0, domain.NewValidationError("user_id", "ユーザーIDが必要です")
	}
	n, err := t.store.MarkConversationRead(ctx, userID, counterpartID)
	if err != nil {
		return 0, err
	}
	t.logger.Debug().Str("user_id", userID).Str("counterpart_id", counterpartID).Int64("updated", n).Msg("会話を既読にしました")
	return n, nil
}

// UnreadMessageCounts はユーザー宛ての未読メッセージ件数を送信者ごとに返す。
func (t *Tracker) UnreadMessageCounts(ctx context.Context, userID string) (map[string]int64, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "ユーザーIDが必要です")
	}
	return t.store.UnreadMessageCounts(ctx, userID)
}
