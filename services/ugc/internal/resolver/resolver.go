// Package resolver maps a blog post identifier to the storage folders that
// hold its comments, likes and ratings.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/blog-ugc/services/ugc/internal/content"
)

// Kind selects one of the per-post record collections.
type Kind string

const (
	KindComments Kind = "comments"
	KindLikes    Kind = "likes"
	KindRatings  Kind = "ratings"
)

// IntermediateType tags every folder created between the site and a leaf.
const IntermediateType = "jnt:contentFolder"

// LeafType is the folder type of the collection itself.
func (k Kind) LeafType() string {
	switch k {
	case KindComments:
		return "jsblognt:commentsFolder"
	case KindLikes:
		return "jsblognt:likesFolder"
	case KindRatings:
		return "jsblognt:ratingsFolder"
	}
	return IntermediateType
}

// RecordType is the node type of a single record in the collection.
func (k Kind) RecordType() string {
	switch k {
	case KindComments:
		return "jsblognt:comment"
	case KindLikes:
		return "jsblognt:like"
	case KindRatings:
		return "jsblognt:rating"
	}
	return ""
}

// RecordPrefix is prepended to a fresh uuid to name a record node.
func (k Kind) RecordPrefix() string {
	switch k {
	case KindComments:
		return "c-"
	case KindLikes:
		return "l-"
	case KindRatings:
		return "r-"
	}
	return ""
}

// ResolutionError reports that a post identifier does not resolve to a
// node owned by a site.
type ResolutionError struct {
	PostID string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve post %q: %v", e.PostID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// BasePath builds the collection path for a post in a site.
func BasePath(site, postID string, kind Kind) string {
	return "/sites/" + site + "/contents/ugc/blogs/" + postID + "/" + string(kind)
}

// Resolve looks the post up by identifier and returns the collection path
// under its owning site. Only existence of the post is checked.
func Resolve(ctx context.Context, s content.Session, postID string, kind Kind) (string, error) {
	if strings.TrimSpace(postID) == "" {
		return "", &ResolutionError{PostID: postID, Err: content.ErrNotFound}
	}
	post, err := s.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return "", &ResolutionError{PostID: postID, Err: err}
		}
		return "", err
	}
	site, err := s.ResolveSite(ctx, post)
	if err != nil {
		if errors.Is(err, content.ErrNoSite) {
			return "", &ResolutionError{PostID: postID, Err: err}
		}
		return "", err
	}
	return BasePath(site.Name, postID, kind), nil
}

// EnsureFolder creates every missing segment of path. Intermediate
// segments get IntermediateType, the last one leafType. Existing nodes are
// reused whatever their type.
func EnsureFolder(ctx context.Context, s content.Session, path, leafType string) (*content.Node, error) {
	cur, err := s.GetNode(ctx, content.RootPath)
	if err != nil {
		return nil, fmt.Errorf("load root: %w", err)
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		next := cur.Path + "/" + seg
		if cur.Path == content.RootPath {
			next = "/" + seg
		}
		ok, err := s.Exists(ctx, next)
		if err != nil {
			return nil, err
		}
		if ok {
			if cur, err = s.GetNode(ctx, next); err != nil {
				return nil, err
			}
			continue
		}
		typ := IntermediateType
		if i == len(segs)-1 {
			typ = leafType
		}
		if cur, err = s.CreateChild(ctx, cur, seg, typ); err != nil {
			return nil, fmt.Errorf("ensure %s: %w", path, err)
		}
	}
	return cur, nil
}

// Folder is the read-only variant of Resolve plus EnsureFolder: it returns
// nil when the collection was never created.
func Folder(ctx context.Context, s content.Session, postID string, kind Kind) (*content.Node, error) {
	path, err := Resolve(ctx, s, postID, kind)
	if err != nil {
		return nil, err
	}
	return Existing(ctx, s, path)
}

// Existing returns the folder at path, or nil when it was never created.
func Existing(ctx context.Context, s content.Session, path string) (*content.Node, error) {
	ok, err := s.Exists(ctx, path)
	if err != nil || !ok {
		return nil, err
	}
	return s.GetNode(ctx, path)
}
