package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/events"
	"github.com/example/blog-ugc/internal/platform/logging"
	"github.com/example/blog-ugc/services/ugc/internal/blog"
)

// Moderator applies moderation decisions to comments.
type Moderator interface {
	UpdateStatus(ctx context.Context, commentID, status string) (bool, error)
	Delete(ctx context.Context, commentID string) (bool, error)
}

// ModerationCommand is the payload of ugc.moderation.status and
// ugc.moderation.delete.
type ModerationCommand struct {
	EventID   string `json:"event_id"`
	CommentID string `json:"comment_id"`
	Status    string `json:"status,omitempty"`
	Moderator string `json:"moderator,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeNak
	outcomeTerm
)

// ModerationConsumer pulls moderation commands from JetStream.
type ModerationConsumer struct {
	comments  Moderator
	log       *zap.Logger
	batchSize int
	maxWait   time.Duration
}

func NewModerationConsumer(comments Moderator, log *zap.Logger) *ModerationConsumer {
	log = logging.OrNop(log)
	return &ModerationConsumer{
		comments:  comments,
		log:       log,
		batchSize: envInt("WORKER_BATCH_SIZE", 50),
		maxWait:   time.Duration(envInt("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond,
	}
}

// Start subscribes and processes batches until ctx is cancelled.
func (c *ModerationConsumer) Start(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.PullSubscribe(events.SubjectModerationAll, events.ModerationDurable)
	if err != nil {
		return err
	}
	go func() {
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(c.batchSize, nats.MaxWait(c.maxWait))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				c.log.Warn("moderation_consumer: fetch", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			for _, m := range msgs {
				c.settle(m, c.process(ctx, m.Subject, m.Data))
			}
		}
	}()
	return nil
}

func (c *ModerationConsumer) settle(m *nats.Msg, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = m.Ack()
	case outcomeNak:
		err = m.Nak()
	case outcomeTerm:
		err = m.Term()
	}
	if err != nil {
		c.log.Warn("moderation_consumer: settle", zap.String("subject", m.Subject), zap.Error(err))
	}
}

func (c *ModerationConsumer) process(ctx context.Context, subject string, data []byte) outcome {
	action := strings.TrimPrefix(subject, events.SubjectModerationPrefix)

	var cmd ModerationCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.log.Warn("moderation_consumer: invalid payload", zap.String("subject", subject), zap.Error(err))
		return outcomeTerm
	}
	cmd.CommentID = strings.TrimSpace(cmd.CommentID)
	if cmd.CommentID == "" {
		c.log.Warn("moderation_consumer: missing comment_id", zap.String("event_id", cmd.EventID))
		return outcomeTerm
	}

	var (
		found bool
		err   error
	)
	switch action {
	case "status":
		status := strings.ToLower(strings.TrimSpace(cmd.Status))
		if !blog.ValidStatus(status) {
			c.log.Warn("moderation_consumer: invalid status", zap.String("event_id", cmd.EventID), zap.String("status", cmd.Status))
			return outcomeTerm
		}
		found, err = c.comments.UpdateStatus(ctx, cmd.CommentID, status)
	case "delete":
		found, err = c.comments.Delete(ctx, cmd.CommentID)
	default:
		c.log.Warn("moderation_consumer: unknown action", zap.String("subject", subject))
		return outcomeTerm
	}

	if err != nil {
		c.log.Error("moderation_consumer: apply failed",
			zap.String("action", action), zap.String("comment_id", cmd.CommentID), zap.Error(err))
		return outcomeNak
	}
	if !found {
		c.log.Info("moderation_consumer: comment not found",
			zap.String("action", action), zap.String("comment_id", cmd.CommentID))
		return outcomeAck
	}
	c.log.Info("moderation_consumer: applied",
		zap.String("action", action),
		zap.String("comment_id", cmd.CommentID),
		zap.String("moderator", cmd.Moderator),
	)
	return outcomeAck
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
