package service

import (
	"context"
	"log/slog"
	"time"

	"campuspay/internal/event"
	"campuspay/internal/infrastructure/lock"
	"campuspay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Deps 各服务共用的依赖。Locker 为 nil 时只依赖数据库行锁。
type Deps struct {
	DB                *gorm.DB
	Publisher         event.Publisher
	Locker            lock.Locker
	Calendar          *Calendar
	Logger            *slog.Logger
	PublishTimeout    time.Duration
	DefaultDailyLimit decimal.Decimal
}

type Services struct {
	Charge     *ChargeService
	Recharge   *RechargeService
	Settlement *SettlementService
	Student    *StudentService
	Store      *StoreService
	Outbox     *OutboxService
}

func New(d Deps) *Services {
	b := newBase(d)
	return &Services{
		Charge:     NewChargeService(b),
		Recharge:   NewRechargeService(b),
		Settlement: NewSettlementService(b),
		Student:    NewStudentService(b, d.DefaultDailyLimit),
		Store:      NewStoreService(b),
		Outbox:     NewOutboxService(b),
	}
}

// base 持有仓储和横切逻辑：加锁、提交后通知
type base struct {
	db             *gorm.DB
	publisher      event.Publisher
	locker         lock.Locker
	calendar       *Calendar
	logger         *slog.Logger
	publishTimeout time.Duration

	studentRepo         *repository.StudentRepository
	storeRepo           *repository.StoreRepository
	transactionRepo     *repository.TransactionRepository
	rechargeRepo        *repository.RechargeRepository
	settlementRepo      *repository.SettlementRepository
	storeSettlementRepo *repository.StoreSettlementRepository
}

func newBase(d Deps) *base {
	b := &base{
		db:                  d.DB,
		publisher:           d.Publisher,
		locker:              d.Locker,
		calendar:            d.Calendar,
		logger:              d.Logger,
		publishTimeout:      d.PublishTimeout,
		studentRepo:         repository.NewStudentRepository(d.DB),
		storeRepo:           repository.NewStoreRepository(d.DB),
		transactionRepo:     repository.NewTransactionRepository(d.DB),
		rechargeRepo:        repository.NewRechargeRepository(d.DB),
		settlementRepo:      repository.NewSettlementRepository(d.DB),
		storeSettlementRepo: repository.NewStoreSettlementRepository(d.DB),
	}
	if b.publisher == nil {
		b.publisher = event.NopPublisher{}
	}
	if b.calendar == nil {
		b.calendar = NewCalendar(time.UTC)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.publishTimeout <= 0 {
		b.publishTimeout = 3 * time.Second
	}
	return b
}

func noop() {}

// acquire 进入数据库事务之前的 Redis 互斥，未配置时直接放行
func (b *base) acquire(ctx context.Context, key string) (func(), error) {
	if b.locker == nil {
		return noop, nil
	}
	release, err := b.locker.Acquire(ctx, key)
	if err != nil {
		return nil, classify("acquire "+key, err)
	}
	return release, nil
}

// notify 提交后发布事件。请求被取消也要发出去，失败只记日志。
func (b *base) notify(ctx context.Context, channel, name string, payload any) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.publishTimeout)
	defer cancel()

	if err := b.publisher.Publish(pctx, channel, name, payload); err != nil {
		b.logger.Warn("事件发布失败", "channel", channel, "event", name, "error", err)
	}
}
