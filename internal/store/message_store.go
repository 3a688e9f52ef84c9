package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/breakoutarea/realtime/internal/domain"
)

// messageRow はmessagesテーブルの1行。
type messageRow struct {
	Seq         int64  `db:"seq"`
	ID          string `db:"id"`
	SenderID    string `db:"sender_id"`
	RecipientID string `db:"recipient_id"`
	Text        string `db:"text"`
	IsRead      bool   `db:"is_read"`
	CreatedAt   int64  `db:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:          r.ID,
		Seq:         r.Seq,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Text:        r.Text,
		Read:        r.IsRead,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

// CreateMessage は未読のメッセージを新規に保存する。
// ID・Seq・CreatedAt・Readはストアが採番してmに書き戻す。
func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) error {
	m.ID = uuid.New().String()
	m.Read = false
	m.CreatedAt = s.timestamp()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, text, is_read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		m.ID, m.SenderID, m.RecipientID, m.Text, m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.PersistenceError("メッセージの保存に失敗", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return domain.PersistenceError("メッセージのシーケンス取得に失敗", err)
	}
	m.Seq = seq
	return nil
}

// Conversation は2ユーザー間のメッセージを両方向とも作成順（created_at, seq の昇順）で返す。
// 引数の順序は結果に影響しない。
func (s *Store) Conversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT seq, id, sender_id, recipient_id, text, is_read, created_at FROM messages
		 WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		 ORDER BY created_at ASC, seq ASC`,
		userA, userB, userB, userA)
	if err != nil {
		return nil, domain.PersistenceError("会話の取得に失敗", err)
	}

	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// MarkConversationRead はcounterpartIDからrecipientIDへの未読メッセージを既読にし、更新件数を返す。
func (s *Store) MarkConversationRead(ctx context.Context, recipientID, counterpartID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1
		 WHERE recipient_id = ? AND sender_id = ? AND is_read = 0`,
		recipientID, counterpartID)
	if err != nil {
		return 0, domain.PersistenceError("会話の既読処理に失敗", err)
	}
	return rowsAffected(res)
}

// UnreadMessageCounts は受信者宛ての未読メッセージ件数を送信者ごとに返す。
func (s *Store) UnreadMessageCounts(ctx context.Context, recipientID string) (map[string]int64, error) {
	var rows []struct {
		SenderID string `db:"sender_id"`
		Count    int64  `db:"unread"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT sender_id, COUNT(*) AS unread FROM messages
		 WHERE recipient_id = ? AND is_read = 0
		 GROUP BY sender_id`, recipientID)
	if err != nil {
		return nil, domain.PersistenceError("未読メッセージ件数の取得に失敗", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.SenderID] = r.Count
	}
	return counts, nil
}
