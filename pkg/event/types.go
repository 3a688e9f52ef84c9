// Package event はWebSocketクライアントへ配信するプッシュイベントのエンベロープを定義する。
package event

import (
	"encoding/json"
	"time"

	"github.com/breakoutarea/realtime/internal/domain"
)

// Version はエンベロープ形式のバージョン。互換性のない変更を加えたら上げること。
const Version = 1

// Type はイベントの種類を表す。
type Type string

const (
	// TypeNotificationNew は新しい通知が作成されたことを表す。
	TypeNotificationNew Type = "notification:new"
	// TypeMessageReceived はダイレクトメッセージを受信したことを表す。
	TypeMessageReceived Type = "receive_message"

	// TypeConnected は接続が確立し配信対象として登録されたことを表す制御フレーム。
	TypeConnected Type = "connected"
	// TypePong はクライアントのpingへの応答フレーム。
	TypePong Type = "pong"
	// TypeError はクライアントからのフレームを処理できなかったことを表す。
	TypeError Type = "error"
)

// Envelope はプッシュ配信されるイベントの共通構造。
type Envelope struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Version はエンベロープ形式のバージョン。
	Version int `json:"version"`
	// Type はイベントの種類。
	Type Type `json:"type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
	// CreatedAt はイベントが生成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// NotificationData はnotification:newイベントのデータ。
type NotificationData = domain.Notification

// MessageData はreceive_messageイベントのデータ。
type MessageData = domain.Message

// ConnectedData はconnectedフレームのデータ。
type ConnectedData struct {
	// UserID は登録されたユーザーID。
	UserID string `json:"user_id"`
	// ConnectionID は接続の識別子。
	ConnectionID string `json:"connection_id"`
}

// ErrorData はerrorフレームのデータ。
type ErrorData struct {
	// Code は機械判定用のエラーコード。
	Code string `json:"code"`
	// Message はエラーの説明。
	Message string `json:"message"`
}
