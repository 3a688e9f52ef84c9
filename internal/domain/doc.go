// Package domain はリアルタイム配信コアが扱うドメインモデルとエラー分類を定義する。
//
// 通知（Notification）とダイレクトメッセージ（Message）の永続レコード、
// 表示用の公開プロジェクション（UserSummary, PostSummary）、
// およびバリデーション・永続化・参照系のエラーを含む。
package domain
