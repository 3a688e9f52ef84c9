package notification

import (
	"context"

	"github.com/breakoutarea/realtime/internal/domain"
)

// OnPostLiked は投稿へのいいねを投稿者への通知に変換する。
func (d *Dispatcher) OnPostLiked(ctx context.Context, likerID, authorID, postID string) (*domain.Notification, error) {
	return d.Notify(ctx, authorID, domain.KindLike, likerID, postID)
}

// OnCommentAdded は投稿へのコメントを投稿者への通知に変換する。
func (d *Dispatcher) OnCommentAdded(ctx context.Context, commenterID, authorID, postID string) (*domain.Notification, error) {
	return d.Notify(ctx, authorID, domain.KindComment, commenterID, postID)
}

// OnUserFollowed はフォローをフォローされたユーザーへの通知に変換する。
func (d *Dispatcher) OnUserFollowed(ctx context.Context, followerID, followedID string) (*domain.Notification, error) {
	return d.Notify(ctx, followedID, domain.KindFollow, followerID, "")
}
