package server

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
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"consult-edge/config"
	"consult-edge/constant"
	"consult-edge/edge"
	jobHandler "consult-edge/handler"
	"consult-edge/pkg/archive"
	"consult-edge/pkg/consultapi"
	"consult-edge/pkg/rabbitmq"
	"consult-edge/repository"
	"consult-edge/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("generation", cfg.Edge.Generation).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, err := repository.NewRepo(cfg.DB)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to open local store")
	}
	if err := repo.Migrate(); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to migrate local store")
	}

	store := service.NewRecordingStore(repo)
	uploadClient := consultapi.NewClient(cfg.Upload.Endpoint, cfg.Upload.Token)

	var conn *amqp.Connection
	var notifier service.Notifier
	if cfg.Queue != nil {
		conn, err = config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			publisher, err := rabbitmq.NewEventPublisher(conn, cfg.Queue.EventExchange, cfg.Queue.Kind)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create event publisher")
			} else {
				notifier = publisher
			}
		}
	}

	var archiver service.Archiver
	if cfg.Storage != nil {
		archiver = archive.NewMinioArchiver(cfg.Storage, cfg.ArchiveBucket)
	}

	agent := service.NewUploadAgent(store, uploadClient, notifier, archiver, cfg.Upload.SweepInterval)
	go agent.Run(ctx)

	classifier, err := edge.NewClassifier(cfg.Edge.AppOrigin, cfg.Edge.AllowedHosts, cfg.Edge.APIPrefixes)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("invalid app origin")
	}
	fetch, err := edge.NewOriginFetcher(cfg.Edge.AppOrigin, nil)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("invalid app origin")
	}
	edgeHandler := edge.NewHandler(classifier, edge.NewStore(repo, cfg.Edge.Generation), fetch, cfg.Edge.ShellURL)

	shell := append([]string{cfg.Edge.ShellURL}, cfg.Edge.ShellAssets...)
	edgeHandler.Install(ctx, cfg.Edge.Generation, shell)
	if err := edgeHandler.Activate(ctx, cfg.Edge.Generation); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to activate cache generation")
	}

	deps := jobHandler.ServiceDependencies{
		Store:      store,
		Agent:      agent,
		Edge:       edgeHandler,
		Generation: cfg.Edge.Generation,
	}

	if conn != nil {
		controlConsumer := rabbitmq.NewConsumer(conn, rabbitmq.QueueSpec{
			Exchange:   cfg.Queue.ControlExchange,
			Kind:       cfg.Queue.Kind,
			Queue:      cfg.Queue.ControlQueue,
			RoutingKey: "edge.control",
		}, 1, jobHandler.ControlHandler)
		go func() {
			if err := controlConsumer.Consume(ctx, deps); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("control consumer error")
			}
		}()
	}

	r := gin.Default()
	r.Use(requestLogger(ctx))
	addHealth(r)
	jobHandler.RegisterRoutes(r, deps)
	r.NoRoute(gin.WrapH(edgeHandler))

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// requestLogger carries the process logger into each request context so
// the store and edge layers can log through zerolog.Ctx.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	logger := zerolog.Ctx(ctx)
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
