package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginMatcher は許可されたオリジンの集合。"*" を含む場合はすべて許可する。
type OriginMatcher struct {
	any     bool
	origins map[string]struct{}
}

// NewOriginMatcher は許可オリジンのリストからOriginMatcherを生成する。
func NewOriginMatcher(allowedOrigins []string) *OriginMatcher {
	m := &OriginMatcher{origins: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		if o == "*" {
			m.any = true
			continue
		}
		m.origins[o] = struct{}{}
	}
	return m
}

// Allowed はオリジンが許可されているかを返す。
func (m *OriginMatcher) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if m.any {
		return true
	}
	_, ok := m.origins[origin]
	return ok
}

// CheckOrigin はWebSocketのハンドシェイクで使うオリジン検査。
// Originヘッダーのないブラウザ以外のクライアントは許可する。
func (m *OriginMatcher) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || m.Allowed(origin)
}

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	matcher := NewOriginMatcher(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if matcher.Allowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
