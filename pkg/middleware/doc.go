// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証（RESTはAuthorizationヘッダー、WebSocketはクエリパラメータも可）、
// zerologによるリクエストログとパニックリカバリ、CORS設定を含む。
package middleware
