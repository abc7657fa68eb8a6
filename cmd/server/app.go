package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"campuspay/internal/config"
	"campuspay/internal/event"
	"campuspay/internal/infrastructure/cache"
	"campuspay/internal/infrastructure/database"
	"campuspay/internal/infrastructure/lock"
	"campuspay/internal/infrastructure/mq"
	"campuspay/internal/repository"
	"campuspay/internal/service"
	"campuspay/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// app 一次进程运行所需的全部依赖
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	redis    *redis.Client
	calendar *service.Calendar
	// transport 是实际的投递通道，OutboxSender 重投时直接使用
	transport event.Publisher
	svc       *service.Services
	closers   []func()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// bootstrap 加载配置并连接数据库；withIO 为 true 时再连接 Redis 和消息通道
func bootstrap(ctx context.Context, withIO bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	defaultLimit, err := decimal.NewFromString(cfg.Business.DefaultDailyLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid business.default_daily_limit %q: %w", cfg.Business.DefaultDailyLimit, err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		calendar:  service.NewCalendar(loc),
		transport: event.NopPublisher{},
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, func() { sqlDB.Close() })
	}
	if err := database.Migrate(db); err != nil {
		a.close()
		return nil, err
	}

	var locker lock.Locker
	if withIO {
		if cfg.Redis.Enabled {
			a.redis, err = cache.NewRedis(ctx, &cfg.Redis)
			if err != nil {
				a.close()
				return nil, err
			}
			a.closers = append(a.closers, func() { a.redis.Close() })
			locker = lock.NewRedisLocker(a.redis, cfg.LockTTL())
		}
		if err := a.buildTransport(); err != nil {
			a.close()
			return nil, err
		}
	}

	var publisher event.Publisher = a.transport
	if withIO && cfg.Events.Outbox && len(cfg.Events.Drivers) > 0 {
		publisher = event.NewOutboxPublisher(a.transport, repository.NewOutboxRepository(db))
	}

	a.svc = service.New(service.Deps{
		DB:                db,
		Publisher:         publisher,
		Locker:            locker,
		Calendar:          a.calendar,
		Logger:            logger,
		PublishTimeout:    cfg.PublishTimeout(),
		DefaultDailyLimit: defaultLimit,
	})
	return a, nil
}

// buildTransport 按 events.drivers 组装事件通道
func (a *app) buildTransport() error {
	var fanout event.Fanout
	for _, driver := range a.cfg.Events.Drivers {
		switch driver {
		case "kafka":
			producer, err := mq.NewKafkaProducer(&a.cfg.Kafka)
			if err != nil {
				return err
			}
			p := event.NewKafkaPublisher(producer, map[string]string{
				event.TransactionUpdate: a.cfg.Kafka.Topic.TransactionUpdate,
				event.SettlementUpdate:  a.cfg.Kafka.Topic.SettlementUpdate,
			})
			a.closers = append(a.closers, func() { p.Close() })
			fanout = append(fanout, p)
		case "redis":
			if a.redis == nil {
				return errors.New("events driver redis requires redis.enabled")
			}
			fanout = append(fanout, event.NewRedisPublisher(a.redis, a.cfg.Events.RedisChannelPrefix))
		case "rabbitmq":
			producer, err := mq.NewRabbitProducer(a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Exchange)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, producer.Close)
			fanout = append(fanout, event.NewRabbitPublisher(producer))
		}
	}
	switch len(fanout) {
	case 0:
		a.transport = event.NopPublisher{}
	case 1:
		a.transport = fanout[0]
	default:
		a.transport = fanout
	}
	a.logger.Info("事件通道已就绪", "drivers", a.cfg.Events.Drivers, "outbox", a.cfg.Events.Outbox)
	return nil
}

// close 逆序释放资源
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) reconcileInterval() time.Duration {
	return time.Duration(a.cfg.Business.ReconcileIntervalMinutes) * time.Minute
}
