// Package events provides a fire-and-forget NATS JetStream publisher for
// interaction events (comments, likes, ratings, moderation).
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectCommentSubmitted = "ugc.comment.submitted"
	SubjectCommentModerated = "ugc.comment.moderated"
	SubjectCommentDeleted   = "ugc.comment.deleted"
	SubjectLikeSubmitted    = "ugc.like.submitted"
	SubjectRatingSubmitted  = "ugc.rating.submitted"

	SubjectModerationPrefix = "ugc.moderation."
	SubjectModerationAll    = SubjectModerationPrefix + "*"
	ModerationDurable       = "ugc_moderation"

	// StreamName is the JetStream stream capturing every ugc.> subject.
	StreamName = "UGC"
)

// EnsureStream creates the UGC stream when it does not exist yet.
func EnsureStream(js nats.JetStreamManager, log *zap.Logger) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"ugc.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return err
	}
	if log != nil {
		log.Info("events: created stream", zap.String("stream", StreamName))
	}
	return nil
}

// Event is the envelope sent to every ugc.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	PostID     string         `json:"post_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// asyncPublisher is the subset of nats.JetStreamContext the publisher needs.
type asyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher publishes events to JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  asyncPublisher
	log *zap.Logger
}

// New creates a Publisher. Pass js=nil for a no-op stub.
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if js == nil {
		return &Publisher{log: log}
	}
	return &Publisher{js: js, log: log}
}

// Publish sends an event asynchronously. Failures are logged as warnings
// and never surface to the caller.
func (p *Publisher) Publish(subject, eventName, postID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		PostID:     postID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data, nats.MsgId(ev.EventID)); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
