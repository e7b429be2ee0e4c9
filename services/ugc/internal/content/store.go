// Package content is the hierarchical, typed-node content repository the
// blog services persist their records in. Every read and write happens
// inside a unit of work (Session) that becomes visible to other sessions
// only after Save.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an identifier or path does not resolve.
	ErrNotFound = errors.New("content: node not found")
	// ErrNoSite is returned when a node has no owning site.
	ErrNoSite = errors.New("content: node has no owning site")
	// ErrExists is returned when a child with the same name already exists.
	ErrExists = errors.New("content: node already exists")
	// ErrSessionClosed is returned when a session is used after Do returned.
	ErrSessionClosed = errors.New("content: session closed")
)

const (
	// RootPath is the path of the tree root.
	RootPath = "/"
	// SitesPath is the parent of every site node.
	SitesPath = "/sites"

	TypeSite        = "jnt:virtualsite"
	TypeBlogPost    = "jnt:blogPost"
	TypeContentList = "jnt:contentFolder"
)

// Site identifies the site a node belongs to.
type Site struct {
	Name string
	Path string
}

// Session is a unit of work against the content tree. Reads observe the
// session's own pending changes.
type Session interface {
	GetByID(ctx context.Context, id string) (*Node, error)
	GetNode(ctx context.Context, path string) (*Node, error)
	Exists(ctx context.Context, path string) (bool, error)
	CreateChild(ctx context.Context, parent *Node, name, typ string) (*Node, error)
	SetProperty(ctx context.Context, n *Node, key string, value any) error
	ListChildren(ctx context.Context, parent *Node) ([]*Node, error)
	// FindByType returns every node of typ in the tree, in no particular order.
	FindByType(ctx context.Context, typ string) ([]*Node, error)
	Remove(ctx context.Context, n *Node) error
	Save(ctx context.Context) error
	ResolveSite(ctx context.Context, n *Node) (Site, error)
}

// Store opens sessions. Changes not saved when fn returns are discarded.
type Store interface {
	Do(ctx context.Context, fn func(Session) error) error
	Ping(ctx context.Context) error
}

// siteOf derives the owning site from a node path of the form
// /sites/<name>/...
func siteOf(path string) (Site, bool) {
	rest, ok := strings.CutPrefix(path, SitesPath+"/")
	if !ok {
		return Site{}, false
	}
	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		return Site{}, false
	}
	return Site{Name: name, Path: SitesPath + "/" + name}, true
}

// resolveSite is shared by the backends: the site node itself must exist.
func resolveSite(ctx context.Context, s Session, n *Node) (Site, error) {
	site, ok := siteOf(n.Path)
	if !ok {
		return Site{}, ErrNoSite
	}
	found, err := s.Exists(ctx, site.Path)
	if err != nil {
		return Site{}, err
	}
	if !found {
		return Site{}, ErrNoSite
	}
	return site, nil
}

// MkdirAll walks path from the root and creates missing segments with typ.
func MkdirAll(ctx context.Context, s Session, path, typ string) (*Node, error) {
	cur, err := s.GetNode(ctx, RootPath)
	if err != nil {
		return nil, fmt.Errorf("load root: %w", err)
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		next := childPath(cur.Path, seg)
		ok, err := s.Exists(ctx, next)
		if err != nil {
			return nil, err
		}
		if ok {
			cur, err = s.GetNode(ctx, next)
		} else {
			cur, err = s.CreateChild(ctx, cur, seg, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// SeedPost creates a site and a blog post under it and returns the post
// identifier. Existing nodes are reused.
func SeedPost(ctx context.Context, store Store, site, slug, title string) (string, error) {
	var id string
	err := store.Do(ctx, func(s Session) error {
		sites, err := MkdirAll(ctx, s, SitesPath, TypeContentList)
		if err != nil {
			return err
		}
		sitePath := childPath(sites.Path, site)
		siteNode, err := getOrCreate(ctx, s, sites, sitePath, site, TypeSite)
		if err != nil {
			return err
		}
		posts, err := MkdirAll(ctx, s, childPath(siteNode.Path, "contents/posts"), TypeContentList)
		if err != nil {
			return err
		}
		post, err := getOrCreate(ctx, s, posts, childPath(posts.Path, slug), slug, TypeBlogPost)
		if err != nil {
			return err
		}
		if title != "" {
			if err := s.SetProperty(ctx, post, "title", title); err != nil {
				return err
			}
		}
		if err := s.SetProperty(ctx, post, "published", time.Now().UTC()); err != nil {
			return err
		}
		id = post.ID
		return s.Save(ctx)
	})
	return id, err
}

func getOrCreate(ctx context.Context, s Session, parent *Node, path, name, typ string) (*Node, error) {
	ok, err := s.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if ok {
		return s.GetNode(ctx, path)
	}
	return s.CreateChild(ctx, parent, name, typ)
}
