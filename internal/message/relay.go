// Package message はユーザー間のダイレクトメッセージを永続化し、受信者へ中継する。
package message

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/directory"
	"github.com/breakoutarea/realtime/internal/domain"
	"github.com/breakoutarea/realtime/pkg/event"
)

// Store はメッセージの永続化を担う。
type Store interface {
	CreateMessage(ctx context.Context, m *domain.Message) error
	Conversation(ctx context.Context, userA, userB string) ([]domain.Message, error)
}

// Pusher は受信者へのプッシュ配信をキューに積む。
type Pusher interface {
	PushEnvelope(userID string, env *event.Envelope) bool
}

// Relay はダイレクトメッセージの送信と会話履歴の取得を行う。
type Relay struct {
	store     Store
	directory directory.Directory
	pusher    Pusher
	logger    zerolog.Logger

	// mu は保存とキュー投入を一組で直列化し、配信順を保存順(seq)と一致させる。
	mu sync.Mutex
}

// NewRelay はRelayを生成する。
func NewRelay(store Store, dir directory.Directory, pusher Pusher, logger zerolog.Logger) *Relay {
	return &Relay{
		store:     store,
		directory: dir,
		pusher:    pusher,
		logger:    logger,
	}
}

// SendMessage はメッセージを保存し、受信者の全接続へreceive_messageを配信する。
// 戻り値は送信者の公開情報を付加した保存済みメッセージ。配信の成否は待たない。
func (r *Relay) SendMessage(ctx context.Context, senderID, recipientID, text string) (*domain.Message, error) {
	switch {
	case senderID == "":
		return nil, domain.NewValidationError("sender_id", "送信者IDが必要です")
	case recipientID == "":
		return nil, domain.NewValidationError("recipient_id", "受信者IDが必要です")
	case senderID == recipientID:
		return nil, domain.NewValidationError("recipient_id", "自分自身にはメッセージを送信できません")
	case strings.TrimSpace(text) == "":
		return nil, domain.NewValidationError("text", "メッセージ本文が空です")
	}

	// 送信者の解決は外部呼び出しになるため、直列化区間に入る前に済ませる
	sender := directory.ResolveUser(ctx, r.directory, senderID, r.logger)

	m := &domain.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
	}
	r.mu.Lock()
	if err := r.store.CreateMessage(ctx, m); err != nil {
		r.mu.Unlock()
		r.logger.Error().Err(err).Str("sender_id", senderID).Str("recipient_id", recipientID).Msg("メッセージの保存に失敗しました")
		return nil, err
	}
	m.Sender = sender

	env, err := event.New(event.TypeMessageReceived, m)
	if err != nil {
		// 保存は完了しているため、配信できなくても送信自体は成功とする
		r.logger.Warn().Err(err).Str("message_id", m.ID).Msg("配信イベントの生成に失敗しました")
	} else {
		r.pusher.PushEnvelope(recipientID, env)
	}
	r.mu.Unlock()

	r.logger.Info().
		Str("message_id", m.ID).
		Str("sender_id", senderID).
		Str("recipient_id", recipientID).
		Msg("メッセージを送信しました")
	return m, nil
}

// Conversation は2ユーザー間の両方向のメッセージを作成順に返す。
// 各メッセージには送信者と受信者の公開情報を付加する。
func (r *Relay) Conversation(ctx context.Context, selfID, otherID string) ([]domain.Message, error) {
	if selfID == "" || otherID == "" {
		return nil, domain.NewValidationError("user_id", "ユーザーIDが必要です")
	}
	list, err := r.store.Conversation(ctx, selfID, otherID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	self := directory.ResolveUser(ctx, r.directory, selfID, r.logger)
	other := directory.ResolveUser(ctx, r.directory, otherID, r.logger)
	for i := range list {
		if list[i].SenderID == selfID {
			list[i].Sender, list[i].Recipient = self, other
		} else {
			list[i].Sender, list[i].Recipient = other, self
		}
	}
	return list, nil
}
