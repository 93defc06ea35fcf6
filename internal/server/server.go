package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/keyvault/config"
	approvalHandler "github.com/ncobase/keyvault/core/approval/handler"
	authHandler "github.com/ncobase/keyvault/core/authority/handler"
	authService "github.com/ncobase/keyvault/core/authority/service"
	entryHandler "github.com/ncobase/keyvault/core/entry/handler"
	envHandler "github.com/ncobase/keyvault/core/environment/handler"
	eventRepository "github.com/ncobase/keyvault/core/event/data/repository"
	eventHandler "github.com/ncobase/keyvault/core/event/handler"
	eventService "github.com/ncobase/keyvault/core/event/service"
	projectHandler "github.com/ncobase/keyvault/core/project/handler"
	wsHandler "github.com/ncobase/keyvault/core/workspace/handler"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/data/messaging"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/internal/middleware"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/net/resp"
	"github.com/ncobase/keyvault/security/jwt"
	"github.com/sony/gobreaker"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	config     *config.Config
	logger     *logger.Logger
	app        *App
	publishers []messaging.Publisher
	cleanup    func(name ...string)
	stopBus    context.CancelFunc
}

// New opens the data layer and builds the application.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	d, cleanup, err := data.New(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to open data layer: %w", err)
	}

	s := &Server{config: cfg, logger: log, cleanup: cleanup}
	store, err := s.eventStore(d)
	if err != nil {
		cleanup()
		return nil, err
	}

	s.app, err = Build(d, Options{
		Cache:     s.authorityCache(d),
		Store:     store,
		BusBuffer: cfg.Event.Buffer,
	}, log)
	if err != nil {
		cleanup()
		return nil, err
	}

	s.subscribeBrokers()
	return s, nil
}

// Migrate only creates the schema.
func Migrate(cfg *config.Config, log *logger.Logger) error {
	s, err := New(cfg, log)
	if err != nil {
		return err
	}
	s.Close(context.Background())
	return nil
}

func (s *Server) eventStore(d *data.Data) (eventRepository.Store, error) {
	if s.config.Event.Store != "mongo" {
		return eventRepository.NewSQLStore(d)
	}
	if d.Mongo() == nil {
		return nil, errors.New("event store is mongo but data.mongodb.uri is not set")
	}
	mc := s.config.Data.MongoDB
	db := mc.Database
	if db == "" {
		db = s.config.AppName
	}
	return eventRepository.NewMongoStore(d.Mongo().Database(db).Collection(mc.Collection), s.logger)
}

func (s *Server) authorityCache(d *data.Data) authService.Cache {
	ttl := s.config.Authority.CacheTTL
	if s.config.Authority.CacheDriver == "redis" && d.Redis() != nil {
		return authService.NewRedisCache(d.Redis(), ttl)
	}
	return authService.NewMemoryCache(ttl)
}

// subscribeBrokers forwards events to the configured brokers. A broker that
// can not be reached is skipped.
func (s *Server) subscribeBrokers() {
	ctx := context.Background()
	var candidates []messaging.Publisher

	if kc := s.config.Data.Kafka; kc != nil && len(kc.Brokers) > 0 {
		k, err := messaging.NewKafka(kc)
		if err != nil {
			s.logger.Warn(ctx, "Kafka publisher disabled", "error", err)
		} else {
			candidates = append(candidates, k)
		}
	}
	if rc := s.config.Data.RabbitMQ; rc != nil && rc.URL != "" {
		r, err := messaging.NewRabbitMQ(rc)
		if err != nil {
			s.logger.Warn(ctx, "RabbitMQ publisher disabled", "error", err)
		} else {
			candidates = append(candidates, r)
		}
	}

	for _, p := range candidates {
		guarded := messaging.WithBreaker(p, messaging.BreakerSettings{
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Warn(ctx, "Publisher breaker state changed", "publisher", name, "from", from.String(), "to", to.String())
			},
		})
		s.app.Bus.Subscribe(guarded.Name(), eventService.PublisherHandler(guarded))
		s.publishers = append(s.publishers, guarded)
		s.logger.Info(ctx, "Event publisher enabled", "publisher", guarded.Name())
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	mode := s.config.RunMode
	if mode == "" || s.config.IsProd() {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Trace(), middleware.Report(), middleware.Logger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		if err := s.app.Data.Ping(c.Request.Context()); err != nil {
			resp.Fail(c.Writer, resp.InternalServer(err.Error()))
			return
		}
		resp.Success(c.Writer, map[string]any{"status": "ok", "events": s.app.Bus.Stats()})
	})

	tm := jwt.NewTokenManager(s.config.Auth.JWT.Secret)
	api := r.Group("/api/v1", middleware.Auth(tm, s.config.Auth.Whitelist, s.logger))
	s.Register(api)

	r.NoRoute(func(c *gin.Context) {
		resp.Fail(c.Writer, resp.NotFound(ecode.Text(ecode.NothingFound)))
	})
	return r
}

// Register mounts every handler on r.
func (s *Server) Register(r gin.IRouter) {
	wsHandler.New(s.app.Workspaces).Register(r)
	authHandler.New(s.app.Authority).Register(r)
	projectHandler.New(s.app.Projects).Register(r)
	envHandler.New(s.app.Environments).Register(r)
	entryHandler.New(s.app.Secrets, "secrets").Register(r)
	entryHandler.New(s.app.Variables, "variables").Register(r)
	approvalHandler.New(s.app.Approvals).Register(r)
	eventHandler.New(s.app.Events).Register(r)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	busCtx, stopBus := context.WithCancel(context.Background())
	s.stopBus = stopBus
	s.app.Bus.Start(busCtx, s.config.Event.Workers)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, s.config.Port))
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Listening and serving HTTP", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.Close(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(shutdownCtx, "Shutdown error", "error", err)
	}
	s.Close(shutdownCtx)
	return nil
}

// Close drains the event bus and releases brokers and connections.
func (s *Server) Close(ctx context.Context) {
	if err := s.app.Bus.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "Failed to shut down event bus", "error", err)
	}
	if s.stopBus != nil {
		s.stopBus()
		s.app.Bus.Wait()
	}
	for _, p := range s.publishers {
		if err := p.Close(); err != nil {
			s.logger.Warn(ctx, "Failed to close publisher", "publisher", p.Name(), "error", err)
		}
	}
	s.cleanup()
}
