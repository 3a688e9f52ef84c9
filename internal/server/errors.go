package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/breakoutarea/realtime/internal/domain"
	"github.com/breakoutarea/realtime/pkg/middleware"
)

// respondError はドメインエラーをHTTPステータスに変換してレスポンスする。
// 想定外のエラーはログに記録し、詳細を隠してfallbackを返す。
func (s *Server) respondError(c *gin.Context, err error, fallback string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "対象が見つかりません"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
	default:
		_ = c.Error(err)
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// requireUser は認証済みユーザーIDを返す。未認証の場合は401を返してfalseを返す。
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}
