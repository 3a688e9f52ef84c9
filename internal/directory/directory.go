// Package directory はユーザー・投稿の表示用公開プロジェクションを取得する。
//
// ユーザーと投稿のデータはCRUDサービスが所有する。本パッケージは通知や
// メッセージを配信する際の表示情報を読み取るだけで、構造的な関連は持たない。
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/domain"
	"github.com/breakoutarea/realtime/pkg/httpclient"
)

// Directory はユーザーと投稿の公開プロジェクションを返す。
type Directory interface {
	// User は指定ユーザーの公開情報を返す。存在しない場合は domain.ErrNotFound。
	User(ctx context.Context, id string) (domain.UserSummary, error)
	// Post は指定投稿の公開情報を返す。存在しない場合は domain.ErrNotFound。
	Post(ctx context.Context, id string) (domain.PostSummary, error)
}

// HTTPDirectory はCRUDサービスのREST APIから公開情報を取得する。
type HTTPDirectory struct {
	// client はCRUDサービスとの通信用HTTPクライアント。
	client *httpclient.Client
}

// NewHTTP は新しいHTTPDirectoryを生成する。
func NewHTTP(client *httpclient.Client) *HTTPDirectory {
	return &HTTPDirectory{client: client}
}

// userResponse はCRUDサービスのユーザーAPIのJSON構造（必要なフィールドのみ）。
type userResponse struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// postResponse はCRUDサービスの投稿APIのJSON構造（必要なフィールドのみ）。
type postResponse struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

// User はGET /api/users/:id からユーザーの公開情報を取得する。
func (d *HTTPDirectory) User(ctx context.Context, id string) (domain.UserSummary, error) {
	var resp userResponse
	if err := d.client.GetJSON(ctx, "/api/users/"+url.PathEscape(id), &resp); err != nil {
		if httpclient.IsNotFound(err) {
			return domain.UserSummary{}, domain.ErrNotFound
		}
		return domain.UserSummary{}, fmt.Errorf("ユーザー情報の取得に失敗: %w", err)
	}
	if resp.ID == "" {
		resp.ID = id
	}
	return domain.UserSummary{
		ID:        resp.ID,
		Username:  resp.Username,
		Name:      resp.Name,
		AvatarURL: resp.AvatarURL,
	}, nil
}

// Post はGET /api/posts/:id から投稿の公開情報を取得する。
func (d *HTTPDirectory) Post(ctx context.Context, id string) (domain.PostSummary, error) {
	var resp postResponse
	if err := d.client.GetJSON(ctx, "/api/posts/"+url.PathEscape(id), &resp); err != nil {
		if httpclient.IsNotFound(err) {
			return domain.PostSummary{}, domain.ErrNotFound
		}
		return domain.PostSummary{}, fmt.Errorf("投稿情報の取得に失敗: %w", err)
	}
	if resp.ID == "" {
		resp.ID = id
	}
	return domain.PostSummary{ID: resp.ID, Text: resp.Text}, nil
}

// Static はメモリ上のマップから公開情報を返すDirectory。
// CRUDサービスを置かないローカル開発とテストで使う。
type Static struct {
	mu    sync.RWMutex
	users map[string]domain.UserSummary
	posts map[string]domain.PostSummary
}

// NewStatic は空のStaticを生成する。
func NewStatic() *Static {
	return &Static{
		users: make(map[string]domain.UserSummary),
		posts: make(map[string]domain.PostSummary),
	}
}

// PutUser はユーザーの公開情報を登録する。
func (s *Static) PutUser(u domain.UserSummary) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

// PutPost は投稿の公開情報を登録する。
func (s *Static) PutPost(p domain.PostSummary) {
	s.mu.Lock()
	s.posts[p.ID] = p
	s.mu.Unlock()
}

// User は登録済みのユーザー情報を返す。
func (s *Static) User(_ context.Context, id string) (domain.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.UserSummary{}, domain.ErrNotFound
	}
	return u, nil
}

// Post は登録済みの投稿情報を返す。
func (s *Static) Post(_ context.Context, id string) (domain.PostSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return domain.PostSummary{}, domain.ErrNotFound
	}
	return p, nil
}

// ResolveUser はユーザーの公開情報を返す。取得に失敗した場合はIDのみのプロジェクションを返す。
// 表示用の付加情報であり、取得失敗で配信を止めない。
func ResolveUser(ctx context.Context, d Directory, id string, logger zerolog.Logger) *domain.UserSummary {
	u, err := d.User(ctx, id)
	if err != nil {
		logLookupFailure(logger, "user", id, err)
		return &domain.UserSummary{ID: id}
	}
	return &u
}

// ResolvePost は投稿の公開情報を返す。idが空の場合はnil、取得失敗時はIDのみを返す。
func ResolvePost(ctx context.Context, d Directory, id string, logger zerolog.Logger) *domain.PostSummary {
	if id == "" {
		return nil
	}
	p, err := d.Post(ctx, id)
	if err != nil {
		logLookupFailure(logger, "post", id, err)
		return &domain.PostSummary{ID: id}
	}
	return &p
}

func logLookupFailure(logger zerolog.Logger, kind, id string, err error) {
	ev := logger.Warn()
	if errors.Is(err, domain.ErrNotFound) {
		ev = logger.Debug()
	}
	ev.Err(err).Str("kind", kind).Str("id", id).Msg("公開情報の取得に失敗したためIDのみで配信します")
}
