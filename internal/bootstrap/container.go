package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"

	"product-rec-agent/internal/config"
	"product-rec-agent/internal/controller"
	"product-rec-agent/internal/handler"
	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/internal/repository/contract"
	"product-rec-agent/internal/repository/implementation"
	"product-rec-agent/internal/repository/memory"
	"product-rec-agent/internal/service"
	"product-rec-agent/internal/websocket"
	"product-rec-agent/pkg/agent"
	"product-rec-agent/pkg/database"
	pktNats "product-rec-agent/pkg/nats"
	"product-rec-agent/pkg/session"
	"product-rec-agent/pkg/turn"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ChatController       controller.IChatController
	SessionStreamHandler *handler.SessionStreamHandler

	// Background Services (Exposed for main.go to run)
	TurnEventConsumer service.ITurnEventConsumer
	WebSocketHub      *websocket.Hub

	ChatService  service.IChatService
	SessionStore *session.Store
	Logger       logger.ILogger

	closers []func()
}

// Options lets callers swap infrastructure, mainly for the terminal client and tests.
type Options struct {
	Logger    logger.ILogger
	Transport agent.Transport
	BlobRepo  contract.BlobRepository
}

func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{}

	// 1. Core Facades
	sysLogger := opts.Logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	}
	c.Logger = sysLogger

	// 2. Infrastructure
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { rdb.Close() })
	}

	var diagnostics *service.DiagnosticsService
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			diagnostics = service.NewDiagnosticsService(natsPub, sysLogger)
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	blobRepo := opts.BlobRepo
	if blobRepo == nil {
		var err error
		blobRepo, err = newBlobRepository(cfg, rdb)
		if err != nil {
			return nil, err
		}
	}

	// 3. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	hostname, _ := os.Hostname()
	wsHub := websocket.NewHub(rdb, hostname+"-"+uuid.NewString(), sysLogger)
	c.WebSocketHub = wsHub

	// 4. Domain
	store := session.NewStore(blobRepo, session.WithKey(cfg.Store.Key), session.WithLogger(sysLogger))
	loaded := store.Load(context.Background())
	sysLogger.Info("BOOTSTRAP", "Session history loaded", map[string]interface{}{
		"driver":   cfg.Store.Driver,
		"sessions": len(loaded),
	})
	c.SessionStore = store

	transport := opts.Transport
	if transport == nil {
		clientOpts := []agent.ClientOption{agent.WithLogger(sysLogger)}
		if diagnostics != nil {
			clientOpts = append(clientOpts, agent.WithNotifier(diagnostics))
		}
		transport = agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.Path, cfg.Agent.Timeout, clientOpts...)
	}

	orchestrator := turn.NewOrchestrator(transport, store,
		turn.WithAgentId(cfg.Agent.AgentId),
		turn.WithPolicy(turn.Policy{MaxRetries: cfg.Turn.MaxRetries, BackoffBase: cfg.Turn.BackoffBase}),
		turn.WithObserver(service.NewTurnEventPublisher(pubSub, service.TurnEventsTopic, sysLogger)),
		turn.WithLogger(sysLogger),
	)

	chatService := service.NewChatService(
		orchestrator,
		store,
		memory.NewConversationRepository(),
		cfg.Agent.AgentId,
		sysLogger,
	)
	c.ChatService = chatService
	c.TurnEventConsumer = service.NewTurnEventConsumer(pubSub, service.TurnEventsTopic, wsHub, sysLogger)

	// 5. Controllers
	c.ChatController = controller.NewChatController(chatService)
	c.SessionStreamHandler = handler.NewSessionStreamHandler(chatService, wsHub, cfg.App.JwtSecret, sysLogger)

	return c, nil
}

func newBlobRepository(cfg *config.Config, rdb *redis.Client) (contract.BlobRepository, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return memory.NewBlobRepository(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("session store driver redis requires REDIS_URL")
		}
		return implementation.NewRedisBlobRepository(rdb), nil
	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to GORM DB: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate session tables: %w", err)
		}
		return implementation.NewGormBlobRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown session store driver %q", cfg.Store.Driver)
	}
}

// Close releases infrastructure connections in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
