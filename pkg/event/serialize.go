package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New は新しいエンベロープを生成する。
// dataにはイベント固有のデータ構造体を渡す。nilの場合Dataは空になる。
func New(eventType Type, data any) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.New().String(),
		Version:   Version,
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
	if data == nil {
		return env, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	env.Data = jsonData
	return env, nil
}

// Marshal はエンベロープをワイヤ形式（JSON）にシリアライズする。
func (e *Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("エンベロープのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Unmarshal はワイヤ形式のバイト列からエンベロープを復元する。
func Unmarshal(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("エンベロープのデシリアライズに失敗: %w", err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("未対応のエンベロープバージョン: %d", env.Version)
	}
	return &env, nil
}

// DecodeData はエンベロープのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Envelope) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
