package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/api"
	"github.com/example/blog-ugc/internal/platform/auth"
	"github.com/example/blog-ugc/internal/platform/httpserver"
	"github.com/example/blog-ugc/services/ugc/internal/blog"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func commentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "comment_id"))
	if id == "" {
		api.BadRequest(w, "MISSING_ID", "comment_id is required", httpserver.RequestIDFromContext(r.Context()), nil)
		return "", false
	}
	return id, true
}

func moderator(r *http.Request) string {
	sub, _ := auth.SubjectFromContext(r.Context())
	return sub
}

// moderationStatus reads the optional ?status= filter.
func moderationStatus(w http.ResponseWriter, r *http.Request) (string, bool) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !blog.ValidStatus(status) {
		api.BadRequest(w, "INVALID_STATUS", "status must be pending, approved or rejected",
			httpserver.RequestIDFromContext(r.Context()), map[string]any{"status": status})
		return "", false
	}
	return status, true
}

// ModerationQueue handles GET /v1/moderation/comments
func ModerationQueue(cs *blog.CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := moderationStatus(w, r)
		if !ok {
			return
		}
		q, err := cs.Queue(r.Context(), status)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, q)
	}
}

// ModerationComments handles GET /v1/moderation/posts/{post_id}/comments
func ModerationComments(cs *blog.CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := postID(w, r)
		if !ok {
			return
		}
		status, ok := moderationStatus(w, r)
		if !ok {
			return
		}
		views, err := cs.Moderation(r.Context(), id, status)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, commentsResponse{PostID: id, Comments: views, Total: len(views)})
	}
}

// UpdateCommentStatus handles PUT /v1/moderation/comments/{comment_id}/status
func UpdateCommentStatus(cs *blog.CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		var req updateStatusRequest
		if !decode(w, r, &req) {
			return
		}
		status := strings.ToLower(strings.TrimSpace(req.Status))
		if !blog.ValidStatus(status) {
			api.BadRequest(w, "INVALID_STATUS", "status must be pending, approved or rejected",
				httpserver.RequestIDFromContext(r.Context()), map[string]any{"status": req.Status})
			return
		}

		updated, err := cs.UpdateStatus(r.Context(), id, status)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if !updated {
			api.NotFound(w, "COMMENT_NOT_FOUND", "comment not found", httpserver.RequestIDFromContext(r.Context()))
			return
		}
		log.Info("comment moderated", zap.String("comment_id", id), zap.String("status", status), zap.String("moderator", moderator(r)))
		api.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Message: "status updated to " + status})
	}
}

// DeleteComment handles DELETE /v1/moderation/comments/{comment_id}
func DeleteComment(cs *blog.CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := commentID(w, r)
		if !ok {
			return
		}
		deleted, err := cs.Delete(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if !deleted {
			api.NotFound(w, "COMMENT_NOT_FOUND", "comment not found", httpserver.RequestIDFromContext(r.Context()))
			return
		}
		log.Info("comment removed", zap.String("comment_id", id), zap.String("moderator", moderator(r)))
		api.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Message: "comment deleted"})
	}
}
