package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/blog-ugc/internal/platform/auth"
	"github.com/example/blog-ugc/internal/platform/config"
	"github.com/example/blog-ugc/internal/platform/db"
	"github.com/example/blog-ugc/internal/platform/events"
	"github.com/example/blog-ugc/internal/platform/httpserver"
	"github.com/example/blog-ugc/internal/platform/logging"
	"github.com/example/blog-ugc/internal/platform/natsconn"
	"github.com/example/blog-ugc/internal/platform/run"
	"github.com/example/blog-ugc/services/ugc/internal/blog"
	"github.com/example/blog-ugc/services/ugc/internal/content"
	"github.com/example/blog-ugc/services/ugc/internal/grpcapi"
	"github.com/example/blog-ugc/services/ugc/internal/handlers"
	"github.com/example/blog-ugc/services/ugc/internal/keylock"
	"github.com/example/blog-ugc/services/ugc/internal/settings"
	"github.com/example/blog-ugc/services/ugc/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	blogSettings, err := settings.Load(cfg.BlogConfigFile, log)
	if err != nil {
		log.Error("blog settings", zap.Error(err))
		run.Exit(1)
	}
	blogSettings.Watch()

	store, closePool := initStore(cfg, log)
	if closePool != nil {
		defer closePool()
	}

	locker, closeRedis := initLocker(cfg, log)
	if closeRedis != nil {
		defer closeRedis()
	}

	// NATS is optional: without it events are dropped and the moderation
	// consumer does not run.
	var (
		js nats.JetStreamContext
		nc *nats.Conn
	)
	nc, err = natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
	} else {
		defer nc.Close()
		js, err = nc.JetStream()
		if err != nil {
			log.Error("jetstream", zap.Error(err))
		} else if err := events.EnsureStream(js, log); err != nil {
			log.Warn("jetstream stream", zap.Error(err))
		}
	}
	publisher := events.New(js, log)

	deps := blog.Deps{
		Store:    store,
		Settings: blogSettings.Holder(),
		Locker:   locker,
		Events:   publisher,
		Log:      log,
	}
	comments := blog.NewCommentService(deps)
	likes := blog.NewLikeService(deps)
	ratings := blog.NewRatingService(deps)

	if !blogSettings.Current().SecretConfigured {
		log.Warn("blog.serverSecret not configured, client and ip hashes use the built-in default")
	}

	limiter := handlers.NewRateLimiter(cfg.SubmitLimit.RatePerSec, cfg.SubmitLimit.Burst)
	limiter.TrustProxyHeaders = cfg.SubmitLimit.TrustProxyHeaders

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		},
	})
	handlers.Mount(r, handlers.Services{
		Comments: comments,
		Likes:    likes,
		Ratings:  ratings,
		Settings: blogSettings.Holder(),
		Log:      log,
	}, auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}, limiter)

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	probe := grpcapi.NewHealthProbe(store.Ping, 10*time.Second, log)
	probe.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go probe.Run(ctx)

		if js != nil {
			if err := worker.NewModerationConsumer(comments, log).Start(ctx, js); err != nil {
				log.Error("moderation consumer", zap.Error(err))
			}
		}

		go func() {
			<-ctx.Done()
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(10 * time.Second):
				grpcSrv.Stop()
			}
			runner.Graceful(srv.Shutdown)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStore selects the content store backend. Production requires
// Postgres; elsewhere an unreachable database falls back to memory with a
// seeded demo post.
func initStore(cfg config.AppConfig, log *zap.Logger) (content.Store, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory content store (development only)")
		return memoryStore(log), nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{AppName: cfg.ServiceName})
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory content store", zap.Error(err))
		return memoryStore(log), nil
	}

	pg := content.NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		log.Error("content schema", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}
	log.Info("content store: postgres")
	return pg, pool.Close
}

func memoryStore(log *zap.Logger) content.Store {
	s := content.NewMemoryStore()
	id, err := content.SeedPost(context.Background(), s, "demo", "hello-world", "Hello, world")
	if err != nil {
		log.Warn("seed demo post", zap.Error(err))
		return s
	}
	log.Info("seeded demo post", zap.String("post_id", id))
	return s
}

// initLocker uses Redis when REDIS_URL is set so submissions serialize
// across replicas.
func initLocker(cfg config.AppConfig, log *zap.Logger) (keylock.Locker, func()) {
	if cfg.RedisURL == "" {
		log.Info("keylock: in-process")
		return keylock.NewLocal(), nil
	}
	client := keylock.NewRedisClient(cfg.RedisURL)
	log.Info("keylock: redis")
	return keylock.NewRedis(client, keylock.RedisOptions{}, log), func() { _ = client.Close() }
}
