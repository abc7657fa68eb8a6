// Package testutil 测试用的内存账本和数据构造
package testutil

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"campuspay/internal/infrastructure/database"
	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB 每个测试一个独立的内存 SQLite，已完成迁移
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", "silent")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Clock 可手动拨动的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// CreateStudent 直接落库，绕过登记流程以便构造任意初始状态
func CreateStudent(t testing.TB, db *gorm.DB, balance, limit, spent, lastReset string) *model.Student {
	t.Helper()
	s := &model.Student{
		Name:          "student",
		Class:         "5A",
		Balance:       Dec(balance),
		DailyLimit:    Dec(limit),
		DailySpent:    Dec(spent),
		LastResetDate: lastReset,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

var storeSeq struct {
	sync.Mutex
	n int
}

// CreateStore 同时创建待结算镜像
func CreateStore(t testing.TB, db *gorm.DB) *model.Store {
	t.Helper()
	storeSeq.Lock()
	storeSeq.n++
	n := storeSeq.n
	storeSeq.Unlock()

	s := &model.Store{
		Name:         "canteen-" + strconv.Itoa(n),
		Type:         "canteen",
		MobileNumber: "9000" + strconv.Itoa(n),
		Email:        "store" + strconv.Itoa(n) + "@campus.test",
		Balance:      decimal.Zero,
	}
	require.NoError(t, db.Create(s).Error)
	require.NoError(t, db.Create(&model.StoreSettlement{StoreID: s.ID, PendingAmount: decimal.Zero}).Error)
	return s
}

// ReloadStudent 重新读取学生行
func ReloadStudent(t testing.TB, db *gorm.DB, id int64) *model.Student {
	t.Helper()
	var s model.Student
	require.NoError(t, db.First(&s, id).Error)
	return &s
}

func ReloadStore(t testing.TB, db *gorm.DB, id int64) *model.Store {
	t.Helper()
	var s model.Store
	require.NoError(t, db.First(&s, id).Error)
	return &s
}

// AssertMoney 比较两位小数的金额
func AssertMoney(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Equal(t, Dec(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}
