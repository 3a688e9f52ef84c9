package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/breakoutarea/realtime/internal/domain"
)

// postEventRequest は投稿に対する操作の通知トリガーリクエスト。
type postEventRequest struct {
	// AuthorID は投稿者のユーザーID（通知の受信者）。
	AuthorID string `json:"author_id" binding:"required"`
	// PostID は対象の投稿ID。
	PostID string `json:"post_id" binding:"required"`
}

// followEventRequest はフォローの通知トリガーリクエスト。
type followEventRequest struct {
	// FollowedID はフォローされたユーザーID（通知の受信者）。
	FollowedID string `json:"followed_id" binding:"required"`
}

// handlePostLiked はいいねを投稿者への通知に変換するハンドラ。操作者はJWTのユーザー。
func (s *Server) handlePostLiked() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := requireUser(c)
		if !ok {
			return
		}
		var req postEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		n, err := s.deps.Dispatcher.OnPostLiked(c.Request.Context(), actorID, req.AuthorID, req.PostID)
		s.respondNotification(c, n, err)
	}
}

// handleCommentAdded はコメントを投稿者への通知に変換するハンドラ。
func (s *Server) handleCommentAdded() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := requireUser(c)
		if !ok {
			return
		}
		var req postEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		n, err := s.deps.Dispatcher.OnCommentAdded(c.Request.Context(), actorID, req.AuthorID, req.PostID)
		s.respondNotification(c, n, err)
	}
}

// handleUserFollowed はフォローをフォローされたユーザーへの通知に変換するハンドラ。
func (s *Server) handleUserFollowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := requireUser(c)
		if !ok {
			return
		}
		var req followEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		n, err := s.deps.Dispatcher.OnUserFollowed(c.Request.Context(), actorID, req.FollowedID)
		s.respondNotification(c, n, err)
	}
}

// respondNotification は通知作成の結果をレスポンスする。
// 自分自身への操作で通知が作られなかった場合は200で skipped を返す。
func (s *Server) respondNotification(c *gin.Context, n *domain.Notification, err error) {
	if err != nil {
		s.respondError(c, err, "通知の作成に失敗しました")
		return
	}
	if n == nil {
		c.JSON(http.StatusOK, gin.H{"skipped": true})
		return
	}
	c.JSON(http.StatusCreated, n)
}
