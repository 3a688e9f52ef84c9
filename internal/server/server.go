package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/breakoutarea/realtime/internal/message"
	"github.com/breakoutarea/realtime/internal/notification"
	"github.com/breakoutarea/realtime/internal/readstate"
	"github.com/breakoutarea/realtime/internal/realtime"
	"github.com/breakoutarea/realtime/pkg/middleware"
)

// Pinger は依存先の疎通確認を行う。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps はサーバーが呼び出すドメインコンポーネント。
type Deps struct {
	Dispatcher *notification.Dispatcher
	Relay      *message.Relay
	Tracker    *readstate.Tracker
	Registry   *realtime.Registry
	Pusher     *realtime.Pusher
	Store      Pinger
	Logger     zerolog.Logger
}

// Options はサーバーの動作設定。
type Options struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はJWT検証用の秘密鍵。
	JWTSecret string
	// CORSOrigins はクロスオリジンを許可するオリジン一覧。WebSocketのOrigin検査にも使う。
	CORSOrigins []string
	// DevTokens が true の場合、開発用トークンの発行エンドポイントを有効にする。
	DevTokens bool
	// WSSendBuffer は接続ごとの送信バッファ長。
	WSSendBuffer int
	// WSInboundRate は接続ごとの受信フレームの許容レート（フレーム/秒）。
	WSInboundRate float64
	// WSInboundBurst は受信フレームのバースト許容量。
	WSInboundBurst int
	// ShutdownTimeout はグレースフルシャットダウンの待機上限。
	ShutdownTimeout time.Duration
}

// Server はリアルタイム配信サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// deps はドメインコンポーネント。
	deps Deps
	// opts は動作設定。
	opts Options
	// upgrader はWebSocketへのアップグレードを行う。
	upgrader websocket.Upgrader
	// logger はサーバー全体のロガー。
	logger zerolog.Logger
}

// New は新しいサーバーを生成し、ルーティングを設定する。
func New(deps Deps, opts Options) *Server {
	s := newServer(deps, opts)
	s.setupRoutes(middleware.JWTAuth(opts.JWTSecret), middleware.WebSocketAuth(opts.JWTSecret))
	return s
}

func newServer(deps Deps, opts Options) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(opts.CORSOrigins))

	origins := middleware.NewOriginMatcher(opts.CORSOrigins)
	return &Server{
		router: router,
		deps:   deps,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
		},
		logger: deps.Logger,
	}
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
// 停止時は先に全WebSocket接続を閉じ、その後処理中のリクエストの完了を待つ。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("HTTPサーバーを起動しました")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("シャットダウンを開始します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	s.deps.Registry.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
// authはREST API、wsAuthはWebSocketハンドシェイクの認証ミドルウェア。
func (s *Server) setupRoutes(auth, wsAuth gin.HandlerFunc) {
	if s.opts.DevTokens {
		// 開発用トークン発行（認証不要）
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/api/v1")
	api.Use(auth)
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得
			notifications.GET("", s.handleListNotifications())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnreadNotifications())
			// 未読通知件数取得
			notifications.GET("/unread-count", s.handleUnreadNotificationCount())
			// 全通知を既読にする
			notifications.POST("/read", s.handleMarkAllNotificationsRead())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkNotificationRead())
		}

		messages := api.Group("/messages")
		{
			// 会話履歴取得
			messages.GET("/conversation/:userId", s.handleConversation())
			// メッセージ送信
			messages.POST("/send/:recipientId", s.handleSendMessage())
			// 会話を既読にする
			messages.POST("/read/:senderId", s.handleMarkConversationRead())
			// 送信者ごとの未読件数取得
			messages.GET("/unread", s.handleUnreadMessageCounts())
		}

		// 通知トリガー（内部API - CRUDサービスが書き込み完了後に呼び出す）
		events := api.Group("/internal/events")
		{
			events.POST("/post-liked", s.handlePostLiked())
			events.POST("/comment-added", s.handleCommentAdded())
			events.POST("/user-followed", s.handleUserFollowed())
		}
	}

	// WebSocket
	s.router.GET("/ws", wsAuth, s.handleWebSocket())

	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
}

// handleHealth はサービスの状態と接続数を返すハンドラ。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":      "ok",
			"service":     "realtime",
			"users":       s.deps.Registry.Users(),
			"connections": s.deps.Registry.Len(),
			"push":        s.deps.Pusher.Stats(),
		}
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			s.logger.Error().Err(err).Msg("データベースの疎通確認に失敗しました")
			body["status"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

// handleDevToken は開発用JWTトークンを発行するハンドラ。
// 本番環境では無効化すること。
func (s *Server) handleDevToken() gin.HandlerFunc {
	type request struct {
		UserID   string `json:"user_id" binding:"required"`
		Username string `json:"username"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		token, err := middleware.GenerateJWT(s.opts.JWTSecret, req.UserID, req.Username, 24*time.Hour)
		if err != nil {
			s.logger.Error().Err(err).Msg("JWTの生成に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": req.UserID,
		})
	}
}
