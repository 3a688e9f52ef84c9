package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/breakoutarea/realtime/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store は通知とメッセージを保持するSQLiteストア。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// now は作成日時の採番に使う時計。テストで差し替える。
	now func() time.Time
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithClock は作成日時の採番に使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open はSQLiteデータベースを開き、マイグレーションを適用したStoreを返す。
// 書き込みを直列化しseqを挿入順と一致させるため、接続数は1に制限する。
func Open(ctx context.Context, dsn string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timestamp は現在時刻をミリ秒精度で返す。
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// fromMillis はUnixミリ秒をUTCのtime.Timeに変換する。
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
