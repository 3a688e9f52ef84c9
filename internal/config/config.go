// Package config はリアルタイム配信サービスの設定を環境変数（と任意の設定ファイル）から読み込む。
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config はサービス全体の設定値。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"port" validate:"required,numeric"`
	// DatabasePath はSQLiteのDSN。
	DatabasePath string `mapstructure:"database_path" validate:"required"`
	// JWTSecret はJWT検証用の秘密鍵。
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
	// CORSOrigins はクロスオリジンを許可するオリジン一覧。
	CORSOrigins []string `mapstructure:"cors_origins"`
	// DirectoryURL はユーザー・投稿の公開情報を提供するCRUDサービスのURL。空の場合はID のみで表示する。
	DirectoryURL string `mapstructure:"directory_url" validate:"omitempty,url"`
	// DirectoryToken はCRUDサービスへの問い合わせに付与するサービス間トークン。
	DirectoryToken string `mapstructure:"directory_token"`
	// RedisURL はプロセス間配信に使うRedisのURL。空の場合はプロセス内配信のみ。
	RedisURL string `mapstructure:"redis_url" validate:"omitempty,url"`
	// LogLevel はログレベル。
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	// LogFormat はログの出力形式（json / console）。
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
	// PushWorkers はプッシュ配信ワーカー（シャード）数。
	PushWorkers int `mapstructure:"push_workers" validate:"min=1,max=256"`
	// PushQueueSize はシャードごとの配信キューの長さ。
	PushQueueSize int `mapstructure:"push_queue_size" validate:"min=1"`
	// WSSendBuffer はWebSocket接続ごとの送信バッファ長。
	WSSendBuffer int `mapstructure:"ws_send_buffer" validate:"min=1"`
	// WSInboundRate はWebSocket接続ごとの受信フレームの許容レート（フレーム/秒）。
	WSInboundRate float64 `mapstructure:"ws_inbound_rate" validate:"gt=0"`
	// WSInboundBurst は受信フレームのバースト許容量。
	WSInboundBurst int `mapstructure:"ws_inbound_burst" validate:"min=1"`
	// ShutdownTimeout はグレースフルシャットダウンの待機上限。
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// DevTokens が true の場合、開発用トークンの発行エンドポイントを有効にする。本番では無効にすること。
	DevTokens bool `mapstructure:"dev_tokens"`
}

// defaults は各設定キーの既定値。
var defaults = map[string]any{
	"port":             "8086",
	"database_path":    "/data/realtime.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
	"jwt_secret":       "dev-secret-key",
	"cors_origins":     []string{"http://localhost:5173"},
	"directory_url":    "",
	"directory_token":  "",
	"redis_url":        "",
	"log_level":        "info",
	"log_format":       "json",
	"push_workers":     8,
	"push_queue_size":  256,
	"ws_send_buffer":   128,
	"ws_inbound_rate":  5.0,
	"ws_inbound_burst": 20,
	"shutdown_timeout": 10 * time.Second,
	"dev_tokens":       false,
}

// Load は環境変数から設定を読み込む。
// CONFIG_FILE が設定されている場合はそのファイル（YAML等）も読み込み、環境変数で上書きする。
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}
	return LoadFrom(v)
}

// LoadFrom は既定値を適用したうえでviperインスタンスから設定を組み立てて検証する。
func LoadFrom(v *viper.Viper) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("設定値が不正です: %s (%s)", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("設定値の検証に失敗: %w", err)
	}
	return nil
}
