package server

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/breakoutarea/realtime/internal/realtime"
	"github.com/breakoutarea/realtime/pkg/event"
)

// errRateLimited は受信フレームのレート上限を超えたことを表す。
var errRateLimited = errors.New("受信フレームのレート上限を超えました")

// clientFrame はクライアントから送られるフレーム。
type clientFrame struct {
	Type string `json:"type"`
}

// クライアントが送信できるフレーム種別。
const (
	framePing = "ping"
	frameJoin = "join"
)

// handleWebSocket はWebSocket接続を受け付け、認証済みユーザーの配信先として登録するハンドラ。
// 接続が閉じるまでこのハンドラは戻らない。
func (s *Server) handleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgraderがエラーレスポンスを書き込み済み
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("WebSocketへのアップグレードに失敗しました")
			return
		}

		conn := realtime.NewConnection(userID, ws, s.opts.WSSendBuffer)
		conn.Start()
		s.deps.Registry.Register(userID, conn)
		defer func() {
			s.deps.Registry.Unregister(conn)
			conn.Close(websocket.CloseNormalClosure, "")
		}()

		log := s.logger.With().Str("user_id", userID).Str("connection_id", conn.ID()).Logger()
		log.Info().Msg("WebSocket接続を受け付けました")

		s.sendFrame(conn, event.TypeConnected, event.ConnectedData{UserID: userID, ConnectionID: conn.ID()})

		limiter := rate.NewLimiter(rate.Limit(s.opts.WSInboundRate), s.opts.WSInboundBurst)
		err = conn.ReadLoop(func(data []byte) error {
			if !limiter.Allow() {
				conn.Close(websocket.ClosePolicyViolation, "rate limit exceeded")
				return errRateLimited
			}
			s.handleFrame(conn, data)
			return nil
		})

		switch {
		case errors.Is(err, errRateLimited):
			log.Warn().Msg("受信レート超過のため切断しました")
		case err != nil:
			log.Debug().Err(err).Msg("WebSocket接続が切断されました")
		default:
			log.Info().Msg("WebSocket接続が閉じられました")
		}
	}
}

// handleFrame はクライアントからのフレームを処理する。
// pingにはpongを返し、joinは登録を確認し直す。それ以外はerrorフレームを返す。
func (s *Server) handleFrame(conn *realtime.Connection, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendFrame(conn, event.TypeError, event.ErrorData{Code: "invalid_frame", Message: "フレームをJSONとして解釈できません"})
		return
	}

	switch frame.Type {
	case framePing:
		s.sendFrame(conn, event.TypePong, nil)
	case frameJoin:
		// ユーザーはハンドシェイク時のトークンで決まっているため、再登録して接続情報を返すだけ
		s.deps.Registry.Register(conn.UserID(), conn)
		s.sendFrame(conn, event.TypeConnected, event.ConnectedData{UserID: conn.UserID(), ConnectionID: conn.ID()})
	default:
		s.sendFrame(conn, event.TypeError, event.ErrorData{Code: "unsupported_frame", Message: "未対応のフレーム種別です: " + frame.Type})
	}
}

// sendFrame は制御フレームを1つの接続にだけ送る。
func (s *Server) sendFrame(conn *realtime.Connection, t event.Type, data any) {
	env, err := event.New(t, data)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(t)).Msg("制御フレームの生成に失敗しました")
		return
	}
	payload, err := env.Marshal()
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(t)).Msg("制御フレームのシリアライズに失敗しました")
		return
	}
	if err := conn.Send(payload); err != nil {
		s.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("制御フレームを送信できませんでした")
	}
}
