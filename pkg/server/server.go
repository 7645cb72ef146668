package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	apiv1 "github.com/beam-cloud/bucketmount/pkg/api/v1"
	"github.com/beam-cloud/bucketmount/pkg/buckets"
	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/mount"
	"github.com/beam-cloud/bucketmount/pkg/profiles"
	"github.com/beam-cloud/bucketmount/pkg/rclone"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// Server runs the supervisor behind the HTTP control API.
type Server struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient
	EventBus    *common.EventBus
	Supervisor  *mount.Supervisor
	Backend     *rclone.Backend
	Profiles    *profiles.Store
	Lister      buckets.Lister

	echo       *echo.Echo
	httpServer *http.Server
	listener   net.Listener
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func NewServer(config types.AppConfig) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	if config.Events.Redis.Enabled() {
		rdb, err := common.NewRedisClient(config.Events.Redis, common.WithClientName("BucketmountServer"))
		if err != nil {
			cancel()
			return nil, err
		}
		s.RedisClient = rdb
	}

	store, err := profiles.NewStore(config.Profiles.Path)
	if err != nil {
		s.close()
		return nil, err
	}
	s.Profiles = store

	s.Backend = rclone.NewBackend(config.Rclone)
	s.Lister, err = buckets.NewLister(config.Buckets, s.Backend)
	if err != nil {
		s.close()
		return nil, err
	}

	s.EventBus = common.NewEventBus(ctx, s.RedisClient, config.Events.Redis.Channel)
	s.Supervisor = mount.NewSupervisor(config.Supervisor, s.Backend, s.EventBus)

	if err := s.initHTTP(); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to initialize http server: %w", err)
	}
	return s, nil
}

func (s *Server) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	if s.Config.API.EnableLogs {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}

	e.Use(middleware.Recover())

	base := e.Group(apiv1.HttpServerBaseRoute)
	apiv1.NewHealthGroup(base.Group("/health"), s.RedisClient, s.Backend)

	authed := base.Group("", apiv1.NewAuthMiddleware(s.Config.API.AuthToken))
	apiv1.NewMountGroup(authed, s.Supervisor, s.Profiles)
	apiv1.NewBucketsGroup(authed.Group("/buckets"), s.Lister, s.Profiles)
	apiv1.NewProfilesGroup(authed.Group("/profiles"), s.Profiles)
	apiv1.NewEventsGroup(authed.Group("/events"), s.EventBus)

	addr := fmt.Sprintf("%s:%d", s.Config.API.Host, s.Config.API.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.echo = e
	s.listener = lis
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: e,
		// Event streams end with the server context instead of holding up Shutdown.
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}
	return nil
}

// Addr returns the address the API is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run serves until ctx is cancelled, then unmounts and shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		s.EventBus.Start()
		return nil
	})

	eg.Go(func() error {
		return s.Supervisor.Run(egCtx)
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.Addr()).Msg("control api running")
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		s.shutdownHTTP()
		return nil
	})

	err := eg.Wait()
	s.close()
	log.Info().Msg("server stopped")
	return err
}

func (s *Server) shutdownHTTP() {
	timeout := s.Config.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.cancelFunc()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown http server gracefully")
	}
}

func (s *Server) close() {
	s.cancelFunc()
	if s.RedisClient != nil {
		s.RedisClient.Close()
	}
}
