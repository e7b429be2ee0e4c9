package blog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/events"
	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/resolver"
)

type CommentService struct {
	base
}

func NewCommentService(d Deps) *CommentService {
	return &CommentService{base: newBase(d)}
}

// Submit stores a comment unless it duplicates an earlier one from the
// same client, or from the same network within the last minute.
func (s *CommentService) Submit(ctx context.Context, req CommentRequest) (CommentResult, error) {
	if strings.TrimSpace(req.Body) == "" {
		return CommentResult{}, ErrEmptyComment
	}
	snap := s.settings.Current()
	s.log.Debug("comment submission",
		zap.String("post_id", req.PostID),
		zap.Bool("has_client_hash", req.ClientHash != ""),
		zap.Bool("has_ip_hash", req.IPHash != ""),
	)

	var res CommentResult
	err := s.withLock(ctx, resolver.KindComments, req.PostID, func() error {
		return s.store.Do(ctx, func(sess content.Session) error {
			path, err := resolver.Resolve(ctx, sess, req.PostID, resolver.KindComments)
			if err != nil {
				return err
			}
			folder, err := resolver.EnsureFolder(ctx, sess, path, resolver.KindComments.LeafType())
			if err != nil {
				return err
			}
			existing, err := records(ctx, sess, folder, resolver.KindComments)
			if err != nil {
				return err
			}
			if s.isDuplicate(existing, req) {
				res = CommentResult{Success: false, Code: CodeDuplicateComment}
				return nil
			}

			n, err := createRecord(ctx, sess, folder, resolver.KindComments, req.Submission, s.timestamp(req.Timestamp))
			if err != nil {
				return err
			}
			if err := sess.SetProperty(ctx, n, propBody, req.Body); err != nil {
				return err
			}
			if strings.TrimSpace(req.Author) != "" {
				if err := sess.SetProperty(ctx, n, propAuthor, req.Author); err != nil {
					return err
				}
			}
			if strings.TrimSpace(req.AuthorEmail) != "" {
				if err := sess.SetProperty(ctx, n, propAuthorEmail, req.AuthorEmail); err != nil {
					return err
				}
			}
			status := StatusApproved
			if snap.RequireModeration {
				status = StatusPending
			}
			if err := sess.SetProperty(ctx, n, propApproved, !snap.RequireModeration); err != nil {
				return err
			}
			if err := sess.SetProperty(ctx, n, propStatus, status); err != nil {
				return err
			}
			if err := sess.Save(ctx); err != nil {
				return err
			}

			code := CodeOK
			if snap.RequireModeration {
				code = CodeAwaitingModeration
			}
			res = CommentResult{Success: true, Code: code, CommentID: n.ID}
			s.log.Info("comment persisted",
				zap.String("post_id", req.PostID),
				zap.String("node", n.Path),
				zap.String("status", status),
			)
			return nil
		})
	})
	if err != nil {
		return CommentResult{}, s.fail("submit_comment", req.PostID, err)
	}
	if !res.Success {
		s.log.Info("rejected duplicate comment", zap.String("post_id", req.PostID))
		return res, nil
	}
	s.publish(events.SubjectCommentSubmitted, "comment_submitted", req.PostID, map[string]any{
		"comment_id": res.CommentID,
		"code":       res.Code,
	})
	return res, nil
}

func (s *CommentService) isDuplicate(existing []record, req CommentRequest) bool {
	cutoff := s.now().Add(-duplicateIPWindow)
	for _, r := range existing {
		body, ok := r.node.String(propBody)
		if !ok || body != req.Body {
			continue
		}
		if r.sameClient(req.ClientHash) {
			return true
		}
		if r.sameIP(req.IPHash) && r.hasTS && r.ts.After(cutoff) {
			return true
		}
	}
	return false
}

// Comments returns the approved comments of a post, oldest first.
func (s *CommentService) Comments(ctx context.Context, postID string) ([]CommentView, error) {
	views, err := s.list(ctx, "get_comments", postID, func(v CommentView) bool {
		return v.Status == StatusApproved
	})
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].AuthorEmail = ""
	}
	return views, nil
}

// Moderation returns every comment of a post, optionally restricted to
// one derived status.
func (s *CommentService) Moderation(ctx context.Context, postID, status string) ([]CommentView, error) {
	return s.list(ctx, "moderation_comments", postID, func(v CommentView) bool {
		return status == "" || v.Status == status
	})
}

// Queue lists comments of every post for moderators, grouped by post and
// optionally restricted to one derived status. Posts are ordered by their
// oldest listed comment.
func (s *CommentService) Queue(ctx context.Context, status string) (ModerationQueue, error) {
	q := ModerationQueue{Posts: []PostComments{}}
	var views []CommentView
	postOf := make(map[string]string)
	err := s.store.Do(ctx, func(sess content.Session) error {
		nodes, err := sess.FindByType(ctx, resolver.KindComments.RecordType())
		if err != nil {
			return err
		}
		for _, n := range nodes {
			v := commentView(n)
			q.Counts.add(v.Status)
			if status != "" && v.Status != status {
				continue
			}
			views = append(views, v)
			postOf[v.ID] = commentPostID(n)
		}
		return nil
	})
	if err != nil {
		return ModerationQueue{}, s.fail("moderation_queue", "", err)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Created.Before(views[j].Created)
	})
	index := make(map[string]int)
	for _, v := range views {
		pid := postOf[v.ID]
		i, ok := index[pid]
		if !ok {
			i = len(q.Posts)
			index[pid] = i
			q.Posts = append(q.Posts, PostComments{PostID: pid})
		}
		q.Posts[i].Comments = append(q.Posts[i].Comments, v)
	}
	q.Total = len(views)
	return q, nil
}

func (s *CommentService) list(ctx context.Context, op, postID string, keep func(CommentView) bool) ([]CommentView, error) {
	views := []CommentView{}
	err := s.store.Do(ctx, func(sess content.Session) error {
		folder, err := resolver.Folder(ctx, sess, postID, resolver.KindComments)
		if err != nil || folder == nil {
			return err
		}
		recs, err := records(ctx, sess, folder, resolver.KindComments)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if v := commentView(r.node); keep(v) {
				views = append(views, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, postID, err)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Created.Before(views[j].Created)
	})
	return views, nil
}

// UpdateStatus sets the moderation state of a comment. It reports false
// when no comment has that id.
func (s *CommentService) UpdateStatus(ctx context.Context, commentID, status string) (bool, error) {
	var (
		postID  string
		updated bool
	)
	err := s.store.Do(ctx, func(sess content.Session) error {
		n, err := s.comment(ctx, sess, commentID)
		if err != nil || n == nil {
			return err
		}
		postID, _ = n.String(propPostID)
		if err := sess.SetProperty(ctx, n, propStatus, status); err != nil {
			return err
		}
		if err := sess.SetProperty(ctx, n, propApproved, status == StatusApproved); err != nil {
			return err
		}
		if err := sess.Save(ctx); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, s.fail("update_comment_status", postID, err)
	}
	if !updated {
		s.log.Warn("comment not found for status update", zap.String("comment_id", commentID))
		return false, nil
	}
	s.log.Info("comment status updated", zap.String("comment_id", commentID), zap.String("status", status))
	s.publish(events.SubjectCommentModerated, "comment_moderated", postID, map[string]any{
		"comment_id": commentID,
		"status":     status,
	})
	return true, nil
}

// Delete removes a comment. It reports false when no comment has that id.
func (s *CommentService) Delete(ctx context.Context, commentID string) (bool, error) {
	var (
		postID  string
		removed bool
	)
	err := s.store.Do(ctx, func(sess content.Session) error {
		n, err := s.comment(ctx, sess, commentID)
		if err != nil || n == nil {
			return err
		}
		postID, _ = n.String(propPostID)
		if err := sess.Remove(ctx, n); err != nil {
			return err
		}
		if err := sess.Save(ctx); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, s.fail("delete_comment", postID, err)
	}
	if !removed {
		s.log.Warn("comment not found for deletion", zap.String("comment_id", commentID))
		return false, nil
	}
	s.log.Info("comment deleted", zap.String("comment_id", commentID))
	s.publish(events.SubjectCommentDeleted, "comment_deleted", postID, map[string]any{
		"comment_id": commentID,
	})
	return true, nil
}

// comment loads a comment node by id; other node types count as absent.
func (s *CommentService) comment(ctx context.Context, sess content.Session, id string) (*content.Node, error) {
	n, err := sess.GetByID(ctx, id)
	if errors.Is(err, content.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !n.IsType(resolver.KindComments.RecordType()) {
		return nil, nil
	}
	return n, nil
}
