package blog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/resolver"
)

// Comment moderation states.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Result codes returned to callers.
const (
	CodeOK                 = "OK"
	CodeDuplicateComment   = "DUPLICATE_COMMENT"
	CodeAwaitingModeration = "AWAITING_MODERATION"
	CodeAlreadyLiked       = "ALREADY_LIKED"
)

// DefaultAuthor is shown for comments submitted without a name.
const DefaultAuthor = "Anonymous"

// duplicateIPWindow bounds the same-IP duplicate comment check.
const duplicateIPWindow = time.Minute

// Stored property keys.
const (
	propPostID      = "blogPostId"
	propBody        = "comment"
	propAuthor      = "author"
	propAuthorEmail = "authorEmail"
	propClientHash  = "clientHash"
	propIPHash      = "ipHash"
	propUserAgent   = "ua"
	propTimestamp   = "ts"
	propApproved    = "approved"
	propStatus      = "status"
	propRating      = "rating"
)

// ValidStatus reports whether s is one of the moderation states.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Submission carries the fields common to every interaction request.
// Hashes are already derived by the caller; blank means absent.
type Submission struct {
	PostID     string
	ClientHash string
	IPHash     string
	UserAgent  string
	Timestamp  time.Time
}

type CommentRequest struct {
	Submission
	Body        string
	Author      string
	AuthorEmail string
}

type LikeRequest struct {
	Submission
}

type RatingRequest struct {
	Submission
	Value int64
}

type CommentResult struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	CommentID string `json:"commentId,omitempty"`
}

type LikeResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
}

type RatingStats struct {
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"ratingCount"`
}

type RatingResult struct {
	PostID string `json:"postId"`
	RatingStats
}

// CommentView is the read model of a comment.
type CommentView struct {
	ID          string    `json:"id"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	Created     time.Time `json:"created"`
}

// StatusCounts tallies comments per moderation state.
type StatusCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

func (c *StatusCounts) add(status string) {
	switch status {
	case StatusPending:
		c.Pending++
	case StatusApproved:
		c.Approved++
	case StatusRejected:
		c.Rejected++
	}
}

// PostComments groups the queued comments of one post.
type PostComments struct {
	PostID   string        `json:"postId"`
	Comments []CommentView `json:"comments"`
}

// ModerationQueue is the cross-post moderation view. Counts cover every
// comment regardless of the status filter.
type ModerationQueue struct {
	Posts  []PostComments `json:"posts"`
	Counts StatusCounts   `json:"counts"`
	Total  int            `json:"total"`
}

// record is the stored identity of one interaction node.
type record struct {
	node       *content.Node
	clientHash string
	ipHash     string
	ts         time.Time
	hasTS      bool
}

func readRecord(n *content.Node) record {
	r := record{node: n}
	r.clientHash, _ = n.String(propClientHash)
	r.ipHash, _ = n.String(propIPHash)
	r.ts, r.hasTS = n.Time(propTimestamp)
	return r
}

func (r record) sameClient(clientHash string) bool {
	return strings.TrimSpace(clientHash) != "" && r.clientHash == clientHash
}

func (r record) sameIP(ipHash string) bool {
	return strings.TrimSpace(ipHash) != "" && r.ipHash == ipHash
}

// records lists the children of folder with the kind's record type.
func records(ctx context.Context, s content.Session, folder *content.Node, kind resolver.Kind) ([]record, error) {
	if folder == nil {
		return nil, nil
	}
	kids, err := s.ListChildren(ctx, folder)
	if err != nil {
		return nil, err
	}
	out := make([]record, 0, len(kids))
	for _, n := range kids {
		if n.IsType(kind.RecordType()) {
			out = append(out, readRecord(n))
		}
	}
	return out, nil
}

// createRecord adds a new record node and writes the common properties.
// Optional identity fields are only written when non-blank.
func createRecord(ctx context.Context, s content.Session, folder *content.Node, kind resolver.Kind, sub Submission, ts time.Time) (*content.Node, error) {
	n, err := s.CreateChild(ctx, folder, kind.RecordPrefix()+uuid.NewString(), kind.RecordType())
	if err != nil {
		return nil, err
	}
	props := []struct {
		key string
		val string
	}{
		{propClientHash, sub.ClientHash},
		{propIPHash, sub.IPHash},
		{propUserAgent, sub.UserAgent},
	}
	if err := s.SetProperty(ctx, n, propPostID, sub.PostID); err != nil {
		return nil, err
	}
	for _, p := range props {
		if strings.TrimSpace(p.val) == "" {
			continue
		}
		if err := s.SetProperty(ctx, n, p.key, p.val); err != nil {
			return nil, err
		}
	}
	if err := s.SetProperty(ctx, n, propTimestamp, ts); err != nil {
		return nil, err
	}
	return n, nil
}

// commentStatus derives the moderation state, falling back to the legacy
// approved flag for comments written before status existed.
func commentStatus(n *content.Node) string {
	if s, ok := n.String(propStatus); ok {
		return s
	}
	if approved, _ := n.Bool(propApproved); approved {
		return StatusApproved
	}
	return StatusPending
}

// commentPostID reads the owning post from the record, falling back to the
// folder layout .../blogs/<postId>/comments/<name>.
func commentPostID(n *content.Node) string {
	if id, ok := n.String(propPostID); ok && id != "" {
		return id
	}
	segs := strings.Split(strings.Trim(n.Path, "/"), "/")
	for i := len(segs) - 3; i > 0; i-- {
		if segs[i-1] == "blogs" {
			return segs[i]
		}
	}
	return ""
}

func commentView(n *content.Node) CommentView {
	v := CommentView{ID: n.ID, Status: commentStatus(n), AuthorName: DefaultAuthor}
	if a, ok := n.String(propAuthor); ok && strings.TrimSpace(a) != "" {
		v.AuthorName = a
	}
	v.AuthorEmail, _ = n.String(propAuthorEmail)
	v.Body, _ = n.String(propBody)
	if ts, ok := n.Time(propTimestamp); ok {
		v.Created = ts
	} else {
		v.Created = n.Created
	}
	return v
}
