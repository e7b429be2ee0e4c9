// Package blog implements comment, like and rating submission for blog
// posts on top of the content tree.
package blog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/keylock"
	"github.com/example/blog-ugc/services/ugc/internal/resolver"
	"github.com/example/blog-ugc/services/ugc/internal/settings"
)

// EventPublisher receives fire-and-forget interaction events.
type EventPublisher interface {
	Publish(subject, eventName, postID string, props map[string]any)
}

// Deps are shared by the three services. Locker, Events and Now are
// optional.
type Deps struct {
	Store    content.Store
	Settings settings.Source
	Locker   keylock.Locker
	Events   EventPublisher
	Log      *zap.Logger
	Now      func() time.Time
}

type base struct {
	store    content.Store
	settings settings.Source
	locker   keylock.Locker
	events   EventPublisher
	log      *zap.Logger
	now      func() time.Time
}

func newBase(d Deps) base {
	b := base{
		store:    d.Store,
		settings: d.Settings,
		locker:   d.Locker,
		events:   d.Events,
		log:      d.Log,
		now:      d.Now,
	}
	if b.settings == nil {
		b.settings = settings.NewHolder(nil)
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b
}

// withLock runs fn while holding the per-collection lock, if configured.
func (b base) withLock(ctx context.Context, kind resolver.Kind, postID string, fn func() error) error {
	if b.locker == nil {
		return fn()
	}
	unlock, err := b.locker.Lock(ctx, keylock.Key(string(kind), postID))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// fail classifies err: resolution errors pass through, everything else is
// logged and wrapped in a ServiceError.
func (b base) fail(op, postID string, err error) error {
	var rerr *ResolutionError
	if errors.As(err, &rerr) {
		b.log.Warn("blog post not resolvable", zap.String("op", op), zap.String("post_id", postID), zap.Error(err))
		return err
	}
	b.log.Error("blog persistence failed", zap.String("op", op), zap.String("post_id", postID), zap.Error(err))
	return &ServiceError{Op: op, PostID: postID, Err: err}
}

func (b base) publish(subject, name, postID string, props map[string]any) {
	if b.events == nil {
		return
	}
	b.events.Publish(subject, name, postID, props)
}

func (b base) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return b.now()
	}
	return t.UTC()
}
