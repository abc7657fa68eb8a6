package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campuspay/internal/event"
	"campuspay/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type published struct {
	Channel string
	Name    string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, channel, name string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: channel, Name: name, Payload: payload})
	return p.err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type fixture struct {
	db    *gorm.DB
	clock *testutil.Clock
	pub   *recordingPublisher
	svc   *Services
}

// 2024-03-10 10:00 UTC
var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

const testToday = "2024-03-10"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, &recordingPublisher{})
}

func newFixtureWith(t *testing.T, pub event.Publisher) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(testNow)
	f := &fixture{db: db, clock: clock}
	if rp, ok := pub.(*recordingPublisher); ok {
		f.pub = rp
	}
	f.svc = New(Deps{
		DB:                db,
		Publisher:         pub,
		Calendar:          NewCalendar(time.UTC).WithClock(clock.Now),
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		PublishTimeout:    time.Second,
		DefaultDailyLimit: decimal.NewFromInt(100),
	})
	return f
}

var dec = testutil.Dec
