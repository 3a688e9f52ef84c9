package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/directory"
	"github.com/breakoutarea/realtime/internal/domain"
	"github.com/breakoutarea/realtime/internal/message"
	"github.com/breakoutarea/realtime/internal/notification"
	"github.com/breakoutarea/realtime/internal/readstate"
	"github.com/breakoutarea/realtime/internal/realtime"
	"github.com/breakoutarea/realtime/internal/store"
	"github.com/breakoutarea/realtime/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testOptions はテスト用のサーバー設定。
func testOptions() Options {
	return Options{
		Port:            "0",
		JWTSecret:       "test-secret",
		CORSOrigins:     []string{"http://localhost:5173"},
		WSSendBuffer:    16,
		WSInboundRate:   100,
		WSInboundBurst:  100,
		ShutdownTimeout: time.Second,
	}
}

// testHeaderAuth はJWTミドルウェアの代わりにX-User-IDヘッダーからユーザーIDを設定する。
func testHeaderAuth(c *gin.Context) {
	if userID := c.GetHeader("X-User-ID"); userID != "" {
		middleware.SetUserID(c, userID)
	}
	c.Next()
}

// setupTestServer はテスト用のサーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T, opts Options) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(t.Context(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("ストアの初期化に失敗: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := directory.NewStatic()
	dir.PutUser(domain.UserSummary{ID: "user-1", Username: "alice"})
	dir.PutUser(domain.UserSummary{ID: "user-2", Username: "bob"})
	dir.PutPost(domain.PostSummary{ID: "post-1", Text: "first post"})

	registry := realtime.NewRegistry(zerolog.Nop())
	pusher := realtime.NewPusher(realtime.NewLocalDelivery(registry, zerolog.Nop()), 2, 64, zerolog.Nop())
	pusher.Start(context.Background())
	t.Cleanup(pusher.Stop)

	deps := Deps{
		Dispatcher: notification.NewDispatcher(st, dir, pusher, zerolog.Nop()),
		Relay:      message.NewRelay(st, dir, pusher, zerolog.Nop()),
		Tracker:    readstate.NewTracker(st, zerolog.Nop()),
		Registry:   registry,
		Pusher:     pusher,
		Store:      st,
		Logger:     zerolog.Nop(),
	}
	s := newServer(deps, opts)
	s.setupRoutes(testHeaderAuth, testHeaderAuth)
	return s, st
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをスライスにデコードするヘルパー関数。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// like はuser-1がuser-2の投稿にいいねしたことを通知する。
func like(t *testing.T, s *Server) map[string]any {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/v1/internal/events/post-liked", "user-1",
		map[string]string{"author_id": "user-2", "post_id": "post-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("いいね通知の作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	t.Run("正常系_状態と接続数を返す", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, testOptions())
		w := doRequest(s, http.MethodGet, "/health", "", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["status"] != "ok" || result["service"] != "realtime" {
			t.Errorf("レスポンスが不正: %v", result)
		}
		if result["connections"] != float64(0) {
			t.Errorf("connections: got %v, want 0", result["connections"])
		}
	})

	t.Run("異常系_データベースに接続できない場合は503", func(t *testing.T) {
		t.Parallel()

		s, st := setupTestServer(t, testOptions())
		st.Close()

		w := doRequest(s, http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, testOptions())
	w := doRequest(s, http.MethodGet, "/api/v1/notifications/unread-count", "", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestNew_JWT(t *testing.T) {
	t.Parallel()

	st, err := store.Open(t.Context(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("ストアの初期化に失敗: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := realtime.NewRegistry(zerolog.Nop())
	pusher := realtime.NewPusher(realtime.NewLocalDelivery(registry, zerolog.Nop()), 1, 8, zerolog.Nop())
	opts := testOptions()
	opts.DevTokens = true
	s := New(Deps{
		Dispatcher: notification.NewDispatcher(st, directory.NewStatic(), pusher, zerolog.Nop()),
		Relay:      message.NewRelay(st, directory.NewStatic(), pusher, zerolog.Nop()),
		Tracker:    readstate.NewTracker(st, zerolog.Nop()),
		Registry:   registry,
		Pusher:     pusher,
		Store:      st,
		Logger:     zerolog.Nop(),
	}, opts)

	t.Run("正常系_開発用トークンでAPIを呼び出せる", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s, http.MethodPost, "/auth/dev-token", "", map[string]string{"user_id": "user-jwt"})
		if w.Code != http.StatusOK {
			t.Fatalf("トークン発行に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}
		token, _ := parseJSON(t, w)["token"].(string)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("異常系_トークンなしは401", func(t *testing.T) {
		t.Parallel()

		// X-User-IDヘッダーはJWT認証では無視される
		w := doRequest(s, http.MethodGet, "/api/v1/notifications", "user-1", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("異常系_user_idのない開発用トークン要求は400", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s, http.MethodPost, "/auth/dev-token", "", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestDevTokenDisabled(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, testOptions())
	w := doRequest(s, http.MethodPost, "/auth/dev-token", "", map[string]string{"user_id": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRun_Shutdown(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, testOptions())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// 起動直後にキャンセルしても停止できる
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run()がエラーを返した: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run()が停止しない")
	}
}
