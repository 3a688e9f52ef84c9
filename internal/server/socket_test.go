package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breakoutarea/realtime/pkg/event"
)

// dialWebSocket はテストサーバーの /ws にユーザーとして接続し、connectedフレームを読み捨てる。
func dialWebSocket(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("X-User-ID", userID)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	env := readEnvelope(t, conn)
	if env.Type != event.TypeConnected {
		t.Fatalf("最初のフレームがconnectedではない: %s", env.Type)
	}
	data, err := event.DecodeData[event.ConnectedData](env)
	if err != nil || data.UserID != userID || data.ConnectionID == "" {
		t.Fatalf("connectedフレームの内容が不正: %+v, err=%v", data, err)
	}
	return conn
}

// readEnvelope はWebSocketから1フレーム読み取りエンベロープに復元する。
func readEnvelope(t *testing.T, conn *websocket.Conn) *event.Envelope {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("フレームの受信に失敗: %v", err)
	}
	env, err := event.Unmarshal(data)
	if err != nil {
		t.Fatalf("フレームの復元に失敗: %v", err)
	}
	return env
}

// waitForConnections はRegistryの接続数がwantになるまで待つ。
func waitForConnections(t *testing.T, s *Server, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.deps.Registry.Len() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("接続数が%dにならない: got=%d", want, s.deps.Registry.Len())
}

func TestWebSocket_Ping(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, testOptions())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	conn := dialWebSocket(t, srv, "user-1")

	t.Run("pingにはpongを返す", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
			t.Fatalf("送信に失敗: %v", err)
		}
		if env := readEnvelope(t, conn); env.Type != event.TypePong {
			t.Errorf("フレーム種別: got %s, want %s", env.Type, event.TypePong)
		}
	})

	t.Run("不正なフレームにはerrorを返し接続は維持する", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
			t.Fatalf("送信に失敗: %v", err)
		}
		env := readEnvelope(t, conn)
		if env.Type != event.TypeError {
			t.Fatalf("フレーム種別: got %s, want %s", env.Type, event.TypeError)
		}
		data, _ := event.DecodeData[event.ErrorData](env)
		if data.Code != "invalid_frame" {
			t.Errorf("code: got %s, want invalid_frame", data.Code)
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
			t.Fatalf("送信に失敗: %v", err)
		}
		if env := readEnvelope(t, conn); env.Type != event.TypePong {
			t.Errorf("エラー後のフレーム種別: got %s", env.Type)
		}
	})

	t.Run("joinには接続情報を返す", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)); err != nil {
			t.Fatalf("送信に失敗: %v", err)
		}
		if env := readEnvelope(t, conn); env.Type != event.TypeConnected {
			t.Errorf("フレーム種別: got %s, want %s", env.Type, event.TypeConnected)
		}
		if s.deps.Registry.Len() != 1 {
			t.Errorf("joinで接続が重複登録された: %d", s.deps.Registry.Len())
		}
	})
}

func TestWebSocket_Push(t *testing.T) {
	t.Parallel()

	t.Run("いいね通知が受信者の接続に届く", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, testOptions())
		srv := httptest.NewServer(s.Handler())
		t.Cleanup(srv.Close)

		conn := dialWebSocket(t, srv, "user-2")
		n := like(t, s)

		env := readEnvelope(t, conn)
		if env.Type != event.TypeNotificationNew {
			t.Fatalf("フレーム種別: got %s, want %s", env.Type, event.TypeNotificationNew)
		}
		data, err := event.DecodeData[event.NotificationData](env)
		if err != nil {
			t.Fatalf("データの復元に失敗: %v", err)
		}
		if data.ID != n["id"] || data.SourceUser == nil || data.SourceUser.Username != "alice" {
			t.Errorf("通知の内容が不正: %+v", data)
		}
	})

	t.Run("メッセージが受信者の2つのタブに同一内容で届く", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, testOptions())
		srv := httptest.NewServer(s.Handler())
		t.Cleanup(srv.Close)

		tab1 := dialWebSocket(t, srv, "user-2")
		tab2 := dialWebSocket(t, srv, "user-2")
		sender := dialWebSocket(t, srv, "user-1")

		w := doRequest(s, http.MethodPost, "/api/v1/messages/send/user-2", "user-1", map[string]string{"text": "hi"})
		if w.Code != http.StatusCreated {
			t.Fatalf("送信に失敗: %d", w.Code)
		}

		e1 := readEnvelope(t, tab1)
		e2 := readEnvelope(t, tab2)
		if e1.Type != event.TypeMessageReceived || e1.ID != e2.ID {
			t.Errorf("タブ間でイベントが異なる: %s/%s, %s/%s", e1.Type, e1.ID, e2.Type, e2.ID)
		}

		// 送信者自身には配信されない
		_ = sender.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, _, err := sender.ReadMessage(); err == nil {
			t.Error("送信者にイベントが配信された")
		}

		w = doRequest(s, http.MethodGet, "/api/v1/messages/conversation/user-1", "user-2", nil)
		if result := parseJSONArray(t, w); len(result) != 1 {
			t.Errorf("保存件数: got %d, want 1", len(result))
		}
	})
}

func TestWebSocket_Disconnect(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, testOptions())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	conn := dialWebSocket(t, srv, "user-1")
	waitForConnections(t, s, 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	// 切断後はRegistryから外れる
	waitForConnections(t, s, 0)
}

func TestWebSocket_RateLimit(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.WSInboundRate = 0.001
	opts.WSInboundBurst = 1
	s, _ := setupTestServer(t, opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	conn := dialWebSocket(t, srv, "user-1")

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	if env := readEnvelope(t, conn); env.Type != event.TypePong {
		t.Fatalf("1回目のフレーム種別: got %s", env.Type)
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("CloseErrorであるべき: %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("クローズコード: got %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
	waitForConnections(t, s, 0)
}

func TestWebSocket_Unauthorized(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, testOptions())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("未認証の接続が成功した")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("ステータスコードが401ではない: %v", resp)
	}
}
