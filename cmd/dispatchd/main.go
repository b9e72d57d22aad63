// Command dispatchd runs the chat command dispatch and notification engine:
// it ingests bot updates (long polling or webhook), routes them to commands
// and broadcasts notifications fired over HTTP or NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-dispatch/internal/commands"
	"github.com/tbourn/go-chat-dispatch/internal/config"
	httpapi "github.com/tbourn/go-chat-dispatch/internal/http"
	"github.com/tbourn/go-chat-dispatch/internal/http/handlers"
	"github.com/tbourn/go-chat-dispatch/internal/notifiers"
	"github.com/tbourn/go-chat-dispatch/internal/observability"
	"github.com/tbourn/go-chat-dispatch/internal/repo"
	"github.com/tbourn/go-chat-dispatch/internal/services"
	"github.com/tbourn/go-chat-dispatch/internal/sysutil"
	"github.com/tbourn/go-chat-dispatch/internal/telegram"
	"github.com/tbourn/go-chat-dispatch/internal/trigger"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("dispatchd stopped")
	}
	log.Info().Msg("dispatchd stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	otelShutdown, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentDB(db, cfg.DB.Driver); err != nil {
			return fmt.Errorf("instrument db: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store := services.NewStore(db)
	if len(cfg.Dispatch.AnonymousPermissions) > 0 {
		if err := store.GrantPermissions(ctx, cfg.Dispatch.AnonymousRole, cfg.Dispatch.AnonymousPermissions...); err != nil {
			return fmt.Errorf("seed permissions: %w", err)
		}
	}

	client, err := telegram.New(cfg.Telegram.Token, telegram.Options{
		APIURL:      cfg.Telegram.APIURL,
		SendTimeout: cfg.Telegram.SendTimeout,
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	gate := &services.PermissionGate{Users: store, Roles: store, AnonymousRole: cfg.Dispatch.AnonymousRole}
	notifierCat := services.NewNotifierCatalog()
	bc := services.NewBroadcaster(client, cfg.Dispatch.BroadcastRPS, cfg.Dispatch.BroadcastBurst)
	if err := notifiers.Register(notifierCat, bc, cfg.Dispatch.AnnouncePermission); err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}
	notify := services.NewNotificationService(notifierCat, store, gate)

	commandCat := services.NewCommandCatalog()
	if err := commands.Register(commands.Deps{
		Sender:        client,
		Commands:      commandCat,
		Notifiers:     notifierCat,
		Gate:          gate,
		Subscriptions: notify,
		Users:         store,
		Menu:          client,
		RegisterRole:  cfg.Dispatch.AnonymousRole,
	}); err != nil {
		return fmt.Errorf("commands: %w", err)
	}

	dispatcher := services.NewCommandDispatcher(commandCat, gate, store, client)
	dispatcher.Callbacks = client
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		dispatcher.Locker = services.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis chat lock")
	}

	if cfg.NATS.URL != "" {
		nc, err := trigger.Connect(trigger.Config{URL: cfg.NATS.URL, Name: cfg.OTEL.ServiceName})
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		sub := &trigger.Subscriber{Service: notify, Prefix: cfg.NATS.SubjectPrefix, Timeout: cfg.Dispatch.NotifyTimeout}
		if err := sub.Start(nc); err != nil {
			nc.Close()
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer drainNATS(nc, sub)
	}

	deps := httpapi.Deps{Config: cfg, Notify: &handlers.NotifyTrigger{Service: notify, Timeout: cfg.Dispatch.NotifyTimeout}}
	if cfg.Telegram.Mode == config.IngestWebhook {
		deps.Webhook = &handlers.Webhook{
			Dispatcher: dispatcher,
			Decoder:    client,
			Token:      cfg.Telegram.Token,
			Secret:     cfg.Telegram.WebhookSecret,
		}
	}
	defer deps.Notify.Wait()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, deps)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("mode", cfg.Telegram.Mode).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	switch cfg.Telegram.Mode {
	case config.IngestPoll:
		if err := client.DeleteWebhook(ctx); err != nil {
			log.Warn().Err(err).Msg("deleteWebhook failed")
		}
		p := &services.Poller{
			Source:      client,
			Dispatcher:  dispatcher,
			Settings:    store,
			Timeout:     cfg.Telegram.PollTimeout,
			RetryDelay:  cfg.Telegram.RetryDelay,
			Concurrency: cfg.Dispatch.Concurrency,
		}
		if err := p.Restore(ctx); err != nil {
			return fmt.Errorf("restore poll offset: %w", err)
		}
		go func() {
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("poller: %w", err)
			}
		}()
	case config.IngestWebhook:
		hook := cfg.Telegram.WebhookURL + httpapi.WebhookPrefix + cfg.Telegram.Token
		if err := client.SetWebhook(ctx, hook, cfg.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("setWebhook: %w", err)
		}
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		log.Warn().Err(serr).Msg("http shutdown")
	}
	return err
}

func drainNATS(nc *nats.Conn, sub *trigger.Subscriber) {
	sub.Stop()
	if err := nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("nats drain")
	}
}
