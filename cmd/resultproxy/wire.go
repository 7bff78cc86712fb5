package main

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/chain"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/database"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/events"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/storage"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/store"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/tokenizer"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/config"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/logging"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/service"
	transport "github.com/iExecBlockchainComputing/iexec-result-proxy/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type application struct {
	router  *gin.Engine
	closers []func() error
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to release resource")
		}
	}
}

func (a *application) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// build connects every backend described by cfg and assembles the HTTP router
func build(ctx context.Context, cfg *config.Config) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	app.onClose(db.Close)

	key, err := tokenizer.LoadOrCreateKey(cfg.JWT.KeyPath)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.NewJWTTokenizer(key)
	if err != nil {
		return nil, err
	}

	hub, err := chain.Dial(ctx, chain.Config{
		NodeAddress: cfg.Chain.NodeAddress,
		HubAddress:  cfg.Chain.HubAddress,
		MaxAttempts: cfg.Chain.MaxAttempts,
		Backoff:     cfg.Chain.Backoff,
	})
	if err != nil {
		return nil, err
	}
	app.onClose(func() error { hub.Close(); return nil })

	var (
		challenges     ports.ChallengeStore
		authorizations ports.AuthorizationCache
		publisher      message.Publisher
	)
	wmLogger := logging.NewWatermillLogger(log.Logger)

	switch cfg.Cache.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		app.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}

		challenges = store.NewRedisChallengeStore(client)
		authorizations = store.NewRedisAuthorizationCache(client)
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
		}
	default:
		memChallenges := store.NewMemoryChallengeStore()
		memAuthorizations := store.NewMemoryAuthorizationCache()
		challenges, authorizations = memChallenges, memAuthorizations

		sweeper, err := store.NewSweeper(cfg.Cache.SweepSchedule, map[string]store.Sweepable{
			"challenges":     memChallenges,
			"authorizations": memAuthorizations,
		})
		if err != nil {
			return nil, err
		}
		if err := sweeper.Start(ctx); err != nil {
			return nil, err
		}
		app.onClose(func() error { sweeper.Stop(); return nil })

		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		audit := events.NewAuditLog(pubSub, log.Logger)
		if err := audit.Start(ctx); err != nil {
			pubSub.Close()
			return nil, err
		}
		app.onClose(func() error { audit.Wait(); return nil })
		publisher = pubSub
	}
	app.onClose(publisher.Close)
	eventPub := events.NewWatermillPublisher(publisher)

	var results ports.ResultStorage
	switch cfg.Storage.Backend {
	case "database":
		results = storage.NewDocumentStorage(database.ResultDocuments{DB: db})
	default:
		sh, err := storage.ConnectIpfs(ctx, cfg.Ipfs.URL, cfg.Ipfs.MaxAttempts, cfg.Ipfs.RetryDelay)
		if err != nil {
			return nil, err
		}
		results = storage.NewIpfsStorage(sh, database.ResultNameRepository{DB: db})
	}

	challengeService := service.NewChallengeService(challenges)
	jwtService := service.NewJwtService(tok, database.TokenRepository{DB: db}, eventPub)
	authorizationService := service.NewAuthorizationService(hub, authorizations, cfg.Cache.AuthorizationTTL)
	authService := service.NewAuthService(challengeService, jwtService, authorizationService)
	proxyService := service.NewProxyService(hub, authorizationService, results, eventPub, cfg.Scratch.Dir,
		service.WithMaxExtractedSize(cfg.Scratch.MaxExtractedSize))

	handlers := transport.NewHandlers(challengeService, authService, jwtService, proxyService, db.Ping)
	app.router = transport.SetupRouter(handlers)
	return app, nil
}
