// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// リアルタイム配信サービスが、ユーザーや投稿の公開情報を持つCRUDサービスの
// APIを呼び出す際に使用する。タイムアウト・認証ヘッダー・ステータスコードの
// 扱いをサービス間で統一する。
package httpclient
