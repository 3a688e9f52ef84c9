// Package notification はソーシャル操作（いいね・コメント・フォロー）を受信者への通知に変換する。
//
// 通知は永続化を同期的に行い、付加情報の解決とプッシュ配信は非同期に行う。
// 受信者がオフラインでもレコードは保存され、再接続後の一覧取得で参照できる。
package notification
