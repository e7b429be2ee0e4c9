package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/api"
	"github.com/example/blog-ugc/internal/platform/httpserver"
	"github.com/example/blog-ugc/services/ugc/internal/blog"
	"github.com/example/blog-ugc/services/ugc/internal/identity"
	"github.com/example/blog-ugc/services/ugc/internal/settings"
)

const (
	maxBodyBytes   = 1 << 20
	clientIDMaxAge = 365 * 24 * time.Hour
)

type submitCommentRequest struct {
	Comment     string `json:"comment"`
	Author      string `json:"author"`
	AuthorEmail string `json:"authorEmail"`
}

type submitRatingRequest struct {
	Rating *int64 `json:"rating"`
}

type commentsResponse struct {
	PostID   string             `json:"postId"`
	Comments []blog.CommentView `json:"comments"`
	Total    int                `json:"total"`
}

type likeCountResponse struct {
	PostID    string `json:"postId"`
	LikeCount int    `json:"likeCount"`
}

func postID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "post_id"))
	if id == "" {
		api.BadRequest(w, "MISSING_ID", "post_id is required", httpserver.RequestIDFromContext(r.Context()), nil)
		return "", false
	}
	return id, true
}

// submission derives the caller identity. A caller without a client id
// gets a fresh one as a cookie so later submissions hash the same way.
func submission(w http.ResponseWriter, r *http.Request, src settings.Source, postID string) blog.Submission {
	snap := src.Current()
	cid := identity.ClientID(r, snap.ClientIDCookieName)
	if cid == "" {
		cid = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     snap.ClientIDCookieName,
			Value:    cid,
			Path:     "/",
			MaxAge:   int(clientIDMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
		})
	}
	h := identity.NewHasher(snap.ServerSecret)
	sub := blog.Submission{
		PostID:     postID,
		ClientHash: h.ClientHash(cid),
		UserAgent:  r.UserAgent(),
	}
	if snap.EnableIPHash {
		sub.IPHash = h.IPHash(identity.ClientIP(r))
	}
	return sub
}

// writeServiceError maps service failures onto the error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	var rerr *blog.ResolutionError
	switch {
	case errors.As(err, &rerr):
		api.NotFound(w, "POST_NOT_FOUND", "blog post not found", rid)
		return
	case errors.Is(err, blog.ErrEmptyComment):
		api.BadRequest(w, "EMPTY_COMMENT", "comment must not be empty", rid, nil)
		return
	}
	log.Error("request failed", zap.String("path", r.URL.Path), zap.String("request_id", rid), zap.Error(err))
	api.Internal(w, rid)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		api.BadRequest(w, api.CodeInvalidJSON, "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
		return false
	}
	return true
}

// SubmitComment handles POST /v1/posts/{post_id}/comments
func SubmitComment(cs *blog.CommentService, src settings.Source, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		var req submitCommentRequest
		if !decode(w, r, &req) {
			return
		}

		res, err := cs.Submit(r.Context(), blog.CommentRequest{
			Submission:  submission(w, r, src, id),
			Body:        req.Comment,
			Author:      strings.TrimSpace(req.Author),
			AuthorEmail: strings.TrimSpace(req.AuthorEmail),
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// ListComments handles GET /v1/posts/{post_id}/comments
func ListComments(cs *blog.CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		views, err := cs.Comments(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, commentsResponse{PostID: id, Comments: views, Total: len(views)})
	}
}

// SubmitLike handles POST /v1/posts/{post_id}/likes
func SubmitLike(ls *blog.LikeService, src settings.Source, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		res, err := ls.Submit(r.Context(), blog.LikeRequest{Submission: submission(w, r, src, id)})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// LikeCount handles GET /v1/posts/{post_id}/likes
func LikeCount(ls *blog.LikeService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		n, err := ls.Count(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, likeCountResponse{PostID: id, LikeCount: n})
	}
}

// SubmitRating handles POST /v1/posts/{post_id}/ratings
func SubmitRating(rs *blog.RatingService, src settings.Source, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		var req submitRatingRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Rating == nil {
			api.BadRequest(w, "MISSING_RATING", "rating is required", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		res, err := rs.Submit(r.Context(), blog.RatingRequest{
			Submission: submission(w, r, src, id),
			Value:      *req.Rating,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// RatingStats handles GET /v1/posts/{post_id}/ratings
func RatingStats(rs *blog.RatingService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		stats, err := rs.Stats(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, blog.RatingResult{PostID: id, RatingStats: stats})
	}
}
