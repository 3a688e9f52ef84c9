// Package server はリアルタイム配信サービスのHTTP APIとWebSocketエンドポイントを提供する。
//
// REST APIはすべて /api/v1 配下でJWT認証を要求する。
// WebSocketは /ws で受け付け、接続ごとに Registry へ登録して通知とメッセージをプッシュする。
package server
