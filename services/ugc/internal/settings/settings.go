// Package settings holds the runtime blog configuration: the secret used to
// hash visitor identities, the client-id cookie name and the two feature
// switches. The configuration file is watched and every change publishes a
// new immutable Snapshot.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/logging"
)

const (
	DefaultServerSecret       = "blog-service-default-secret-change-me-in-production-2025"
	DefaultClientIDCookieName = "jahia-client-id"
)

const (
	keyServerSecret      = "blog.serversecret"
	keyClientIDCookie    = "blog.clientidcookiename"
	keyEnableIPHash      = "blog.enableiphash"
	keyRequireModeration = "blog.requiremoderation"
)

// Snapshot is one consistent view of the configuration. It is never
// mutated after publication.
type Snapshot struct {
	ServerSecret       string
	SecretConfigured   bool
	ClientIDCookieName string
	EnableIPHash       bool
	RequireModeration  bool
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Snapshot {
	return &Snapshot{
		ServerSecret:       DefaultServerSecret,
		ClientIDCookieName: DefaultClientIDCookieName,
		EnableIPHash:       true,
		RequireModeration:  true,
	}
}

// Source yields the current snapshot.
type Source interface {
	Current() *Snapshot
}

// Static is a fixed Source, handy for tests.
type Static Snapshot

func (s *Static) Current() *Snapshot {
	snap := Snapshot(*s)
	return &snap
}

// Holder publishes snapshots atomically.
type Holder struct {
	cur atomic.Pointer[Snapshot]
}

func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	if s == nil {
		s = Defaults()
	}
	h.cur.Store(s)
	return h
}

func (h *Holder) Current() *Snapshot { return h.cur.Load() }

func (h *Holder) store(s *Snapshot) { h.cur.Store(s) }

// Loader reads the configuration file plus BLOG_* environment overrides
// into a Holder and reloads it when the file changes.
type Loader struct {
	vp     *viper.Viper
	holder *Holder
	log    *zap.Logger
}

// Load builds the first snapshot. An empty path or a missing file leaves
// the defaults and environment in effect.
func Load(path string, log *zap.Logger) (*Loader, error) {
	log = logging.OrNop(log)
	vp := viper.New()
	vp.SetDefault(keyServerSecret, "")
	vp.SetDefault(keyClientIDCookie, "")
	vp.SetDefault(keyEnableIPHash, true)
	vp.SetDefault(keyRequireModeration, true)

	binds := map[string]string{
		keyServerSecret:      "BLOG_SERVER_SECRET",
		keyClientIDCookie:    "BLOG_CLIENT_ID_COOKIE_NAME",
		keyEnableIPHash:      "BLOG_ENABLE_IP_HASH",
		keyRequireModeration: "BLOG_REQUIRE_MODERATION",
	}
	for key, env := range binds {
		if err := vp.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		vp.SetConfigFile(path)
		vp.SetConfigType("yaml")
		if err := vp.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read blog config %s: %w", path, err)
			}
			log.Warn("blog config file not found, using defaults", zap.String("path", path))
		}
	}

	l := &Loader{vp: vp, log: log}
	l.holder = NewHolder(l.snapshot())
	return l, nil
}

// Holder returns the holder the loader publishes into.
func (l *Loader) Holder() *Holder { return l.holder }

// Current is a shortcut for Holder().Current().
func (l *Loader) Current() *Snapshot { return l.holder.Current() }

// Watch starts reloading on file changes. It is a no-op without a file.
func (l *Loader) Watch() {
	if l.vp.ConfigFileUsed() == "" {
		return
	}
	l.vp.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := l.Reload(); err != nil {
			l.log.Error("blog config reload failed", zap.String("file", e.Name), zap.Error(err))
		}
	})
	l.vp.WatchConfig()
}

// Reload re-reads the file and publishes a new snapshot. On a read error
// the previous snapshot stays in effect.
func (l *Loader) Reload() error {
	if l.vp.ConfigFileUsed() != "" {
		if err := l.vp.ReadInConfig(); err != nil {
			return err
		}
	}
	l.holder.store(l.snapshot())
	return nil
}

func (l *Loader) snapshot() *Snapshot {
	s := &Snapshot{
		ServerSecret:       strings.TrimSpace(l.vp.GetString(keyServerSecret)),
		ClientIDCookieName: strings.TrimSpace(l.vp.GetString(keyClientIDCookie)),
		EnableIPHash:       l.vp.GetBool(keyEnableIPHash),
		RequireModeration:  l.vp.GetBool(keyRequireModeration),
	}
	s.SecretConfigured = s.ServerSecret != ""
	if !s.SecretConfigured {
		s.ServerSecret = DefaultServerSecret
		l.log.Warn("blog server secret is not configured, falling back to the built-in default")
	}
	if s.ClientIDCookieName == "" {
		s.ClientIDCookieName = DefaultClientIDCookieName
	}
	l.log.Info("blog configuration loaded",
		zap.String("client_id_cookie", s.ClientIDCookieName),
		zap.Bool("enable_ip_hash", s.EnableIPHash),
		zap.Bool("require_moderation", s.RequireModeration),
		zap.Bool("secret_configured", s.SecretConfigured),
	)
	return s
}
