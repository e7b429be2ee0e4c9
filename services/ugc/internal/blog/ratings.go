package blog

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/events"
	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/resolver"
)

type RatingService struct {
	base
}

func NewRatingService(d Deps) *RatingService {
	return &RatingService{base: newBase(d)}
}

// Aggregate computes the average and count of values.
func Aggregate(values []int64) RatingStats {
	if len(values) == 0 {
		return RatingStats{}
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return RatingStats{
		AverageRating: float64(sum) / float64(len(values)),
		RatingCount:   len(values),
	}
}

// Submit stores or replaces the caller's rating and returns fresh stats.
// A caller is matched by client hash or IP hash; the first match wins.
func (s *RatingService) Submit(ctx context.Context, req RatingRequest) (RatingResult, error) {
	var (
		res     RatingResult
		updated bool
	)
	err := s.withLock(ctx, resolver.KindRatings, req.PostID, func() error {
		return s.store.Do(ctx, func(sess content.Session) error {
			path, err := resolver.Resolve(ctx, sess, req.PostID, resolver.KindRatings)
			if err != nil {
				return err
			}
			folder, err := resolver.EnsureFolder(ctx, sess, path, resolver.KindRatings.LeafType())
			if err != nil {
				return err
			}
			existing, err := records(ctx, sess, folder, resolver.KindRatings)
			if err != nil {
				return err
			}

			var target *content.Node
			for _, r := range existing {
				if r.sameClient(req.ClientHash) || r.sameIP(req.IPHash) {
					target = r.node
					break
				}
			}
			if target != nil {
				updated = true
				// A replaced rating is stamped with server time.
				if err := sess.SetProperty(ctx, target, propTimestamp, s.now()); err != nil {
					return err
				}
			} else {
				if target, err = createRecord(ctx, sess, folder, resolver.KindRatings, req.Submission, s.timestamp(req.Timestamp)); err != nil {
					return err
				}
			}
			if err := sess.SetProperty(ctx, target, propRating, req.Value); err != nil {
				return err
			}
			if err := sess.Save(ctx); err != nil {
				return err
			}

			stats, err := ratingStats(ctx, sess, folder)
			if err != nil {
				return err
			}
			res = RatingResult{PostID: req.PostID, RatingStats: stats}
			return nil
		})
	})
	if err != nil {
		return RatingResult{}, s.fail("submit_rating", req.PostID, err)
	}
	s.log.Info("rating persisted",
		zap.String("post_id", req.PostID),
		zap.Bool("updated", updated),
		zap.Int("rating_count", res.RatingCount),
		zap.Float64("average_rating", res.AverageRating),
	)
	s.publish(events.SubjectRatingSubmitted, "rating_submitted", req.PostID, map[string]any{
		"rating":         req.Value,
		"updated":        updated,
		"average_rating": res.AverageRating,
		"rating_count":   res.RatingCount,
	})
	return res, nil
}

// Stats returns the rating statistics of a post.
func (s *RatingService) Stats(ctx context.Context, postID string) (RatingStats, error) {
	var stats RatingStats
	err := s.store.Do(ctx, func(sess content.Session) error {
		folder, err := resolver.Folder(ctx, sess, postID, resolver.KindRatings)
		if err != nil || folder == nil {
			return err
		}
		stats, err = ratingStats(ctx, sess, folder)
		return err
	})
	if err != nil {
		return RatingStats{}, s.fail("rating_stats", postID, err)
	}
	return stats, nil
}

func ratingStats(ctx context.Context, sess content.Session, folder *content.Node) (RatingStats, error) {
	recs, err := records(ctx, sess, folder, resolver.KindRatings)
	if err != nil {
		return RatingStats{}, err
	}
	values := make([]int64, 0, len(recs))
	for _, r := range recs {
		if v, ok := r.node.Int(propRating); ok {
			values = append(values, v)
		}
	}
	return Aggregate(values), nil
}
