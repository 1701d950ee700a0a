// Package app assembles the dispatch service from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homefixr/dispatch/api/admin"
	"github.com/homefixr/dispatch/api/bookings"
	"github.com/homefixr/dispatch/api/decisions"
	"github.com/homefixr/dispatch/api/technicians"
	"github.com/homefixr/dispatch/config"
	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/dispatch"
	corelock "github.com/homefixr/dispatch/core/lock"
	coremetrics "github.com/homefixr/dispatch/core/metrics"
	corenotify "github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/core/selector"
	corestore "github.com/homefixr/dispatch/core/store"
	infralock "github.com/homefixr/dispatch/infra/lock"
	"github.com/homefixr/dispatch/infra/logger"
	"github.com/homefixr/dispatch/infra/metrics"
	infranotify "github.com/homefixr/dispatch/infra/notify"
	infrastore "github.com/homefixr/dispatch/infra/store"
	"github.com/homefixr/dispatch/internal/eventbus"
)

// Service orchestrates the dispatch engine and its HTTP surface.
type Service struct {
	Engine    *dispatch.Engine
	Directory directory.Directory
	Bus       eventbus.EventBus

	cfg      *config.Config
	log      logger.Logger
	srv      *http.Server
	auditLog audit.LogStore
	mongoCli *mongo.Client
	redisCli *redis.Client
	mqttSink *infranotify.MQTTSink
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	svc := &Service{cfg: cfg, log: logg, Bus: eventbus.New()}

	st, err := svc.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	locks, err := svc.buildLocker()
	if err != nil {
		svc.closeClients()
		return nil, err
	}
	sink, err := svc.buildNotifySink()
	if err != nil {
		svc.closeClients()
		return nil, err
	}

	dir := directory.NewMemoryDirectory()
	sel := selector.NewRankedSelector(dir)

	engine, err := dispatch.NewEngine(st, dir, sel, locks, sink, cfg.Dispatch, logger.New("engine"))
	if err != nil {
		svc.closeClients()
		return nil, fmt.Errorf("dispatch engine: %w", err)
	}
	engine.SetEventBus(svc.Bus)

	if msink := svc.buildMetricsSink(); msink != nil {
		engine.SetMetricsSink(msink)
	}
	auditStore, err := buildAuditStore(cfg.Audit)
	if err != nil {
		svc.closeClients()
		return nil, err
	}
	svc.auditLog = auditStore
	engine.SetAuditStore(auditStore)

	svc.Engine = engine
	svc.Directory = dir
	svc.srv = svc.buildHTTPServer()
	return svc, nil
}

func (s *Service) buildStore(ctx context.Context) (corestore.BookingStore, error) {
	switch s.cfg.Store.Backend {
	case "mongo":
		cli, err := mongo.Connect(ctx, options.Client().ApplyURI(s.cfg.Store.URI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		s.mongoCli = cli
		st := infrastore.NewMongoStore(cli.Database(s.cfg.Store.Database))
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return st, nil
	default:
		return corestore.NewMemoryStore(), nil
	}
}

func (s *Service) buildLocker() (corelock.Locker, error) {
	if s.cfg.Redis.Addr == "" {
		return corelock.NewKeyedMutex(), nil
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	s.redisCli = cli
	return infralock.NewRedisLocker(cli, logger.New("redis_lock")), nil
}

func (s *Service) buildNotifySink() (corenotify.Sink, error) {
	sinks := []corenotify.Sink{infranotify.NewBusSink(s.Bus)}
	if s.cfg.MQTT.Broker != "" {
		ms, err := infranotify.NewMQTTSink(s.cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt sink: %w", err)
		}
		s.mqttSink = ms
		sinks = append(sinks, ms)
	} else {
		sinks = append(sinks, infranotify.NewLogSink("notify"))
	}
	return corenotify.NewMultiSink(sinks...), nil
}

func (s *Service) buildMetricsSink() coremetrics.Sink {
	var sinks []coremetrics.Sink
	if s.cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			s.log.Errorf("prom sink: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if s.cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			s.cfg.Metrics.InfluxURL, s.cfg.Metrics.InfluxToken,
			s.cfg.Metrics.InfluxOrg, s.cfg.Metrics.InfluxBucket))
	}
	if len(sinks) == 0 {
		return nil
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return metrics.NewMultiSink(sinks...)
}

func buildAuditStore(cfg config.AuditConfig) (audit.LogStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.NewSQLiteStore(cfg.Path)
	case "jsonl":
		return audit.NewJSONLStore(cfg.Path)
	default:
		return audit.NopStore{}, nil
	}
}

func (s *Service) buildHTTPServer() *http.Server {
	mux := http.NewServeMux()
	bookings.NewHandler(s.Engine).Register(mux)
	technicians.NewHandler(s.Directory).Register(mux)
	admin.NewHandler(s.Engine, s.cfg.API.AdminToken).Register(mux)
	mux.Handle("GET /api/dispatch/decisions", decisions.NewHandler(s.auditLog, s.cfg.API.AdminToken))
	return &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
}

// Run serves HTTP (and the Prometheus endpoint when enabled) until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled && s.cfg.Metrics.PrometheusPort != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving booking API on %s", s.cfg.API.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var first error
	if s.Engine != nil {
		if err := s.Engine.Close(); err != nil {
			first = err
		}
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.Bus.Close()
	s.closeClients()
	return first
}

func (s *Service) closeClients() {
	if s.mqttSink != nil {
		s.mqttSink.Disconnect()
	}
	if s.redisCli != nil {
		if err := s.redisCli.Close(); err != nil {
			s.log.Errorf("redis close: %v", err)
		}
	}
	if s.mongoCli != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongoCli.Disconnect(ctx); err != nil {
			s.log.Errorf("mongo disconnect: %v", err)
		}
	}
}
