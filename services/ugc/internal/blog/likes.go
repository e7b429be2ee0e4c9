package blog

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/events"
	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/resolver"
)

type LikeService struct {
	base
}

func NewLikeService(d Deps) *LikeService {
	return &LikeService{base: newBase(d)}
}

// Submit records a like unless the client or its network already liked
// the post.
func (s *LikeService) Submit(ctx context.Context, req LikeRequest) (LikeResult, error) {
	var res LikeResult
	err := s.withLock(ctx, resolver.KindLikes, req.PostID, func() error {
		return s.store.Do(ctx, func(sess content.Session) error {
			path, err := resolver.Resolve(ctx, sess, req.PostID, resolver.KindLikes)
			if err != nil {
				return err
			}
			folder, err := resolver.EnsureFolder(ctx, sess, path, resolver.KindLikes.LeafType())
			if err != nil {
				return err
			}
			existing, err := records(ctx, sess, folder, resolver.KindLikes)
			if err != nil {
				return err
			}
			for _, r := range existing {
				if r.sameClient(req.ClientHash) || r.sameIP(req.IPHash) {
					res = LikeResult{Success: false, Code: CodeAlreadyLiked}
					return nil
				}
			}
			n, err := createRecord(ctx, sess, folder, resolver.KindLikes, req.Submission, s.timestamp(req.Timestamp))
			if err != nil {
				return err
			}
			if err := sess.Save(ctx); err != nil {
				return err
			}
			s.log.Info("like persisted", zap.String("post_id", req.PostID), zap.String("node", n.Path))
			res = LikeResult{Success: true, Code: CodeOK}
			return nil
		})
	})
	if err != nil {
		return LikeResult{}, s.fail("submit_like", req.PostID, err)
	}
	if !res.Success {
		s.log.Info("rejected duplicate like", zap.String("post_id", req.PostID))
		return res, nil
	}
	s.publish(events.SubjectLikeSubmitted, "like_submitted", req.PostID, nil)
	return res, nil
}

// Count returns the number of likes on a post.
func (s *LikeService) Count(ctx context.Context, postID string) (int, error) {
	var count int
	err := s.store.Do(ctx, func(sess content.Session) error {
		folder, err := resolver.Folder(ctx, sess, postID, resolver.KindLikes)
		if err != nil {
			return err
		}
		recs, err := records(ctx, sess, folder, resolver.KindLikes)
		count = len(recs)
		return err
	})
	if err != nil {
		return 0, s.fail("count_likes", postID, err)
	}
	return count, nil
}
