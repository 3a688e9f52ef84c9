package domain

import "time"

// Kind は通知の種類を表す。
type Kind string

const (
	// KindLike は投稿へのいいねを表す。
	KindLike Kind = "like"
	// KindComment は投稿へのコメントを表す。
	KindComment Kind = "comment"
	// KindFollow はユーザーのフォローを表す。
	KindFollow Kind = "follow"
)

// Valid は通知種別が既知の値であるかを返す。
func (k Kind) Valid() bool {
	switch k {
	case KindLike, KindComment, KindFollow:
		return true
	}
	return false
}

// UserSummary は表示用に公開されるユーザー情報の最小プロジェクション。
type UserSummary struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Name は表示名。
	Name string `json:"name,omitempty"`
	// AvatarURL はアバター画像のURL。
	AvatarURL string `json:"avatar_url,omitempty"`
}

// PostSummary は表示用に公開される投稿情報の最小プロジェクション。
type PostSummary struct {
	// ID は投稿の一意識別子。
	ID string `json:"id"`
	// Text は投稿本文。
	Text string `json:"text"`
}

// Notification は受信者に向けた永続的な通知レコード。
// 既読フラグは false から true へのみ遷移する。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `json:"id"`
	// Seq は永続化時に採番される単調増加のシーケンス番号。
	Seq int64 `json:"seq"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// Kind は通知の種類。
	Kind Kind `json:"type"`
	// SourceUserID は通知のきっかけとなった操作を行ったユーザーID。
	SourceUserID string `json:"source_user_id"`
	// PostID は関連する投稿ID。フォロー通知では空。
	PostID string `json:"post_id,omitempty"`
	// Read は既読状態。
	Read bool `json:"read"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `json:"created_at"`

	// SourceUser は操作したユーザーの公開プロジェクション。
	SourceUser *UserSummary `json:"source_user,omitempty"`
	// Post は関連投稿の公開プロジェクション。
	Post *PostSummary `json:"post,omitempty"`
}

// Message はユーザー間のダイレクトメッセージ。
type Message struct {
	// ID はメッセージの一意識別子（UUID）。
	ID string `json:"id"`
	// Seq は同一ミリ秒内の順序を保証するシーケンス番号。
	Seq int64 `json:"seq"`
	// SenderID は送信者のユーザーID。
	SenderID string `json:"sender_id"`
	// RecipientID は受信者のユーザーID。
	RecipientID string `json:"recipient_id"`
	// Text はメッセージ本文。
	Text string `json:"text"`
	// Read は既読状態。
	Read bool `json:"read"`
	// CreatedAt はメッセージの作成日時。
	CreatedAt time.Time `json:"created_at"`

	// Sender は送信者の公開プロジェクション。
	Sender *UserSummary `json:"sender,omitempty"`
	// Recipient は受信者の公開プロジェクション。
	Recipient *UserSummary `json:"recipient,omitempty"`
}
