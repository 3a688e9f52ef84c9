package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/breakoutarea/realtime/internal/domain"
)

// notificationRow はnotificationsテーブルの1行。
type notificationRow struct {
	Seq          int64          `db:"seq"`
	ID           string         `db:"id"`
	RecipientID  string         `db:"recipient_id"`
	Kind         string         `db:"kind"`
	SourceUserID string         `db:"source_user_id"`
	PostID       sql.NullString `db:"post_id"`
	IsRead       bool           `db:"is_read"`
	CreatedAt    int64          `db:"created_at"`
}

func (r notificationRow) toDomain() domain.Notification {
	return domain.Notification{
		ID:           r.ID,
		Seq:          r.Seq,
		RecipientID:  r.RecipientID,
		Kind:         domain.Kind(r.Kind),
		SourceUserID: r.SourceUserID,
		PostID:       r.PostID.String,
		Read:         r.IsRead,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

func toNotifications(rows []notificationRow) []domain.Notification {
	out := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

const notificationColumns = `seq, id, recipient_id, kind, source_user_id, post_id, is_read, created_at`

// CreateNotification は未読の通知を新規に保存する。
// ID・Seq・CreatedAt・Readはストアが採番してnに書き戻す。
func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	n.ID = uuid.New().String()
	n.Read = false
	n.CreatedAt = s.timestamp()

	postID := sql.NullString{String: n.PostID, Valid: n.PostID != ""}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, kind, source_user_id, post_id, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.RecipientID, string(n.Kind), n.SourceUserID, postID, n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.PersistenceError("通知の保存に失敗", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return domain.PersistenceError("通知のシーケンス取得に失敗", err)
	}
	n.Seq = seq
	return nil
}

// GetNotification は指定IDの通知を返す。存在しない場合は domain.ErrNotFound を返す。
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.PersistenceError("通知の取得に失敗", err)
	}
	n := row.toDomain()
	return &n, nil
}

// ListNotifications は受信者の通知を新しい順に最大limit件返す。
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE recipient_id = ?
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, domain.PersistenceError("通知一覧の取得に失敗", err)
	}
	return toNotifications(rows), nil
}

// ListUnreadNotifications は受信者の未読通知を新しい順に最大limit件返す。
func (s *Store) ListUnreadNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE recipient_id = ? AND is_read = 0
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, domain.PersistenceError("未読通知一覧の取得に失敗", err)
	}
	return toNotifications(rows), nil
}

// CountUnreadNotifications は受信者の未読通知件数を is_read フラグから集計する。
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, domain.PersistenceError("未読通知件数の取得に失敗", err)
	}
	return count, nil
}

// MarkAllNotificationsRead は受信者の未読通知をすべて既読にし、更新件数を返す。
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, domain.PersistenceError("全通知の既読処理に失敗", err)
	}
	return rowsAffected(res)
}

// MarkNotificationRead は指定IDの通知を既読にし、更新件数を返す。
func (s *Store) MarkNotificationRead(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND is_read = 0`, id)
	if err != nil {
		return 0, domain.PersistenceError("通知の既読処理に失敗", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.PersistenceError("更新件数の取得に失敗", err)
	}
	return n, nil
}
