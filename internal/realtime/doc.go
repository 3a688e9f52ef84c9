// Package realtime はWebSocket接続の管理とプッシュ配信を提供する。
//
// Registry はユーザーIDと生存中の配信チャネルの対応をプロセス内でのみ保持する。
// 1ユーザーが複数のタブや端末から接続している場合、同じイベントがすべてに届く。
//
// 配信は Pusher が受信者ごとのシャードで非同期に行い、同一受信者への配信順序を保つ。
// 配信の失敗は呼び出し元へ伝播しない。永続化済みのレコードが正となる。
//
// 複数プロセス構成では RedisBridge を使い、Redis Pub/Sub 経由で全プロセスの
// Registry へイベントを届ける。未設定の場合、各プロセスは自身が受け付けた接続にのみ配信する。
package realtime
