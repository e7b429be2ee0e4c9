// Package handlers exposes the blog interaction services over HTTP.
package handlers

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/auth"
	"github.com/example/blog-ugc/services/ugc/internal/blog"
	"github.com/example/blog-ugc/services/ugc/internal/settings"
)

// Services bundles what the routes need.
type Services struct {
	Comments *blog.CommentService
	Likes    *blog.LikeService
	Ratings  *blog.RatingService
	Settings settings.Source
	Log      *zap.Logger
}

// Mount registers the public and moderation routes on r. limiter may be
// nil to disable submit throttling.
func Mount(r chi.Router, s Services, verifier auth.JWTVerifier, limiter *RateLimiter) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	r.Route("/v1/posts/{post_id}", func(r chi.Router) {
		r.Get("/comments", ListComments(s.Comments, log))
		r.Get("/likes", LikeCount(s.Likes, log))
		r.Get("/ratings", RatingStats(s.Ratings, log))

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/comments", SubmitComment(s.Comments, s.Settings, log))
			r.Post("/likes", SubmitLike(s.Likes, s.Settings, log))
			r.Post("/ratings", SubmitRating(s.Ratings, s.Settings, log))
		})
	})

	r.Route("/v1/moderation", func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(auth.RequireModerator)
		r.Get("/comments", ModerationQueue(s.Comments, log))
		r.Get("/posts/{post_id}/comments", ModerationComments(s.Comments, log))
		r.Put("/comments/{comment_id}/status", UpdateCommentStatus(s.Comments, log))
		r.Delete("/comments/{comment_id}", DeleteComment(s.Comments, log))
	})
}
