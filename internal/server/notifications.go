package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/breakoutarea/realtime/internal/notification"
)

// handleListNotifications は認証済みユーザーの最新の通知を新しい順に返すハンドラ。
// クエリパラメータ limit で件数を絞れる（上限50件）。
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		limit := notification.DefaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitは正の整数で指定してください"})
				return
			}
			limit = n
		}

		list, err := s.deps.Dispatcher.Recent(c.Request.Context(), userID, limit)
		if err != nil {
			s.respondError(c, err, "通知一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// handleListUnreadNotifications は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnreadNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		list, err := s.deps.Dispatcher.Unread(c.Request.Context(), userID)
		if err != nil {
			s.respondError(c, err, "未読通知一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// handleUnreadNotificationCount は認証済みユーザーの未読通知件数を返すハンドラ。
func (s *Server) handleUnreadNotificationCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		count, err := s.deps.Tracker.UnreadNotificationCount(c.Request.Context(), userID)
		if err != nil {
			s.respondError(c, err, "未読通知件数の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleMarkAllNotificationsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllNotificationsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		updated, err := s.deps.Tracker.MarkAllNotificationsRead(c.Request.Context(), userID)
		if err != nil {
			s.respondError(c, err, "全通知の既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// handleMarkNotificationRead は指定された通知を既読にするハンドラ。
// 他ユーザーの通知は403、存在しない通知は404を返す。
func (s *Server) handleMarkNotificationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		if err := s.deps.Tracker.MarkNotificationRead(c.Request.Context(), userID, c.Param("id")); err != nil {
			s.respondError(c, err, "通知の既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}
