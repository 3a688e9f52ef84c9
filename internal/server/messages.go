package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// sendMessageRequest はメッセージ送信リクエストのJSON構造。
type sendMessageRequest struct {
	// Text はメッセージ本文。空白のみの本文はRelayが拒否する。
	Text string `json:"text"`
}

// handleConversation は認証済みユーザーと相手との会話履歴を作成順に返すハンドラ。
func (s *Server) handleConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		list, err := s.deps.Relay.Conversation(c.Request.Context(), userID, c.Param("userId"))
		if err != nil {
			s.respondError(c, err, "会話の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// handleSendMessage はメッセージを保存して受信者へ中継するハンドラ。
func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		m, err := s.deps.Relay.SendMessage(c.Request.Context(), userID, c.Param("recipientId"), req.Text)
		if err != nil {
			s.respondError(c, err, "メッセージの送信に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

// handleMarkConversationRead は相手から届いた未読メッセージを既読にするハンドラ。
func (s *Server) handleMarkConversationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		updated, err := s.deps.Tracker.MarkConversationRead(c.Request.Context(), userID, c.Param("senderId"))
		if err != nil {
			s.respondError(c, err, "会話の既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// handleUnreadMessageCounts は送信者ごとの未読メッセージ件数と合計を返すハンドラ。
func (s *Server) handleUnreadMessageCounts() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		counts, err := s.deps.Tracker.UnreadMessageCounts(c.Request.Context(), userID)
		if err != nil {
			s.respondError(c, err, "未読メッセージ件数の取得に失敗しました")
			return
		}

		var total int64
		for _, n := range counts {
			total += n
		}
		c.JSON(http.StatusOK, gin.H{"counts": counts, "total": total})
	}
}
