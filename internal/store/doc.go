// Package store は通知とダイレクトメッセージの永続化をSQLiteで提供する。
//
// 未読件数は常に is_read フラグから集計し、独立したカウンタは保持しない。
// 会話内の順序は created_at（ミリ秒）と挿入順の seq で決まる。
package store
