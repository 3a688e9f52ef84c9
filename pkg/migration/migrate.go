// Package migration はembedされたSQLファイルでSQLiteのスキーマを更新する。
// 適用済みのバージョンはschema_migrationsテーブルに記録する。
package migration

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

const upSuffix = ".up.sql"

// step は適用対象のマイグレーション1件。
type step struct {
	version int
	name    string
	file    string
}

// Run はdir配下の「000001_name.up.sql」形式のファイルを未適用のものだけバージョン順に適用する。
// 各ファイルは記録の書き込みと同じトランザクションで実行されるため、途中で失敗しても記録は残らない。
func Run(ctx context.Context, db *sqlx.DB, fsys fs.FS, dir string, logger zerolog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	var done []int
	if err := db.SelectContext(ctx, &done, "SELECT version FROM schema_migrations"); err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	steps, err := scan(fsys, dir)
	if err != nil {
		return err
	}

	for _, s := range steps {
		if slices.Contains(done, s.version) {
			continue
		}
		if err := apply(ctx, db, fsys, s); err != nil {
			return fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", s.version, s.name, err)
		}
		logger.Info().Int("version", s.version).Str("name", s.name).Msg("マイグレーションを適用しました")
	}
	return nil
}

// scan はup.sqlファイルを集めてバージョン順に並べる。
// 形式に合わないファイルは無視し、同じバージョンが2つあればエラーにする。
func scan(fsys fs.FS, dir string) ([]step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションディレクトリの読み込みに失敗: %w", err)
	}

	seen := make(map[int]string)
	var steps []step
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), upSuffix)
		if e.IsDir() || !ok {
			continue
		}
		num, name, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("バージョン %06d が重複しています: %s, %s", version, prev, e.Name())
		}
		seen[version] = e.Name()
		steps = append(steps, step{version: version, name: name, file: path.Join(dir, e.Name())})
	}

	slices.SortFunc(steps, func(a, b step) int { return cmp.Compare(a.version, b.version) })
	return steps, nil
}

func apply(ctx context.Context, db *sqlx.DB, fsys fs.FS, s step) error {
	body, err := fs.ReadFile(fsys, s.file)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.name); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
