package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campuspay/internal/event"
	"campuspay/internal/model"
	"campuspay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCharge_DailyLimitScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "500", "200", "150", testToday)
	store := testutil.CreateStore(t, f.db)

	res, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("40")})
	require.NoError(t, err)
	testutil.AssertMoney(t, "460", res.NewBalance)
	testutil.AssertMoney(t, "190", res.NewDailySpent)
	assert.Equal(t, model.TransactionStatusCompleted, res.Transaction.Status)
	assert.Equal(t, model.TransactionTypePurchase, res.Transaction.Type)
	testutil.AssertMoney(t, "150", res.Transaction.DailySpentBefore)
	testutil.AssertMoney(t, "200", res.Transaction.DailyLimitAtTime)

	_, err = f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("20")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDailyLimitExceeded))

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "10.00", svcErr.Details["remaining_limit"])
	assert.Equal(t, "20.00", svcErr.Details["attempted_amount"])
	assert.Contains(t, svcErr.Message, "Available limit for today: 10.00, attempted amount: 20.00")

	// 失败的扣款不留下任何写入
	got := testutil.ReloadStudent(t, f.db, student.ID)
	testutil.AssertMoney(t, "460", got.Balance)
	testutil.AssertMoney(t, "190", got.DailySpent)

	var count int64
	require.NoError(t, f.db.Model(&model.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	testutil.AssertMoney(t, "40", testutil.ReloadStore(t, f.db, store.ID).Balance)
}

func TestCharge_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "50", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	tests := []struct {
		name      string
		studentID int64
		storeID   int64
		amount    string
		want      error
	}{
		{"zero amount", student.ID, store.ID, "0", ErrInvalidAmount},
		{"negative amount", student.ID, store.ID, "-1", ErrInvalidAmount},
		{"three decimals", student.ID, store.ID, "1.001", ErrInvalidAmount},
		{"unknown student", 9999, store.ID, "1", ErrNotFound},
		{"unknown store", student.ID, 9999, "1", ErrNotFound},
		{"over balance", student.ID, store.ID, "50.01", ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Charge.Charge(ctx, &ChargeRequest{
				StudentID: tt.studentID,
				StoreID:   tt.storeID,
				Amount:    dec(tt.amount),
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.NotEqual(t, KindStorageFailure, KindOf(err))
		})
	}

	testutil.AssertMoney(t, "50", testutil.ReloadStudent(t, f.db, student.ID).Balance)
	assert.Empty(t, f.pub.all())
}

func TestCharge_UnlimitedWhenLimitZero(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateStudent(t, f.db, "1000", "0", "900", testToday)
	store := testutil.CreateStore(t, f.db)

	res, err := f.svc.Charge.Charge(context.Background(), &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("500")})
	require.NoError(t, err)
	testutil.AssertMoney(t, "500", res.NewBalance)
	testutil.AssertMoney(t, "1400", res.NewDailySpent)
}

func TestCharge_LazyResetOnNextDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "500", "200", "190", testToday)
	store := testutil.CreateStore(t, f.db)

	_, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("20")})
	require.True(t, errors.Is(err, ErrDailyLimitExceeded))

	// 第二天，没有运行任何清零任务
	f.clock.Advance(24 * time.Hour)

	res, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("150")})
	require.NoError(t, err)
	testutil.AssertMoney(t, "150", res.NewDailySpent)
	testutil.AssertMoney(t, "0", res.Transaction.DailySpentBefore)

	got := testutil.ReloadStudent(t, f.db, student.ID)
	assert.Equal(t, "2024-03-11", got.LastResetDate)
	testutil.AssertMoney(t, "350", got.Balance)

	// 同一天再扣一次，不会再次清零
	res, err = f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("50")})
	require.NoError(t, err)
	testutil.AssertMoney(t, "200", res.NewDailySpent)

	_, err = f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("0.01")})
	assert.True(t, errors.Is(err, ErrDailyLimitExceeded))
}

func TestCharge_ConcurrentSameStudent(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateStudent(t, f.db, "100", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Charge.Charge(context.Background(), &ChargeRequest{
				StudentID: student.ID,
				StoreID:   store.ID,
				Amount:    dec("60"),
			})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	testutil.AssertMoney(t, "40", testutil.ReloadStudent(t, f.db, student.ID).Balance)
}

func TestCharge_NoDriftAcrossManySmallCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "10", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	for i := 0; i < 100; i++ {
		_, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("0.10")})
		require.NoError(t, err, "charge #%d", i+1)
	}

	got := testutil.ReloadStudent(t, f.db, student.ID)
	assert.True(t, got.Balance.IsZero(), "balance drifted to %s", got.Balance)
	testutil.AssertMoney(t, "10", got.DailySpent)
	testutil.AssertMoney(t, "10", testutil.ReloadStore(t, f.db, store.ID).Balance)

	_, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("0.01")})
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestCharge_BalanceAndLimitNeverBreached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "75", "50", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	amounts := []string{"7.25", "13", "0.99", "20", "9.50", "4", "30", "1.26", "3"}
	for day := 0; day < 3; day++ {
		for _, a := range amounts {
			_, _ = f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec(a)})
			got := testutil.ReloadStudent(t, f.db, student.ID)
			require.False(t, got.Balance.IsNegative())
			require.True(t, got.DailySpent.LessThanOrEqual(got.DailyLimit), "spent %s > limit", got.DailySpent)
		}
		f.clock.Advance(24 * time.Hour)
	}
}

func TestCharge_PublishesTransactionUpdate(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateStudent(t, f.db, "100", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	res, err := f.svc.Charge.Charge(context.Background(), &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("12.50")})
	require.NoError(t, err)

	events := f.pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, event.StoreChannel(store.ID), events[0].Channel)
	assert.Equal(t, event.TransactionUpdate, events[0].Name)

	payload, ok := events[0].Payload.(*TransactionUpdatePayload)
	require.True(t, ok)
	assert.Equal(t, "transaction", payload.Type)
	assert.Equal(t, res.Transaction.TransactionNo, payload.Data.TransactionNo)

	var mirror model.StoreSettlement
	require.NoError(t, f.db.Where("store_id = ?", store.ID).First(&mirror).Error)
	testutil.AssertMoney(t, "12.50", mirror.PendingAmount)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel, name string, payload any) error {
	args := m.Called(ctx, channel, name, payload)
	return args.Error(0)
}

func TestCharge_PublisherFailureDoesNotRollBack(t *testing.T) {
	pub := &mockPublisher{}
	f := newFixtureWith(t, pub)
	student := testutil.CreateStudent(t, f.db, "100", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	pub.On("Publish", mock.Anything, event.StoreChannel(store.ID), event.TransactionUpdate, mock.Anything).
		Return(errors.New("broker down")).Once()

	res, err := f.svc.Charge.Charge(context.Background(), &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("30")})
	require.NoError(t, err)
	testutil.AssertMoney(t, "70", res.NewBalance)
	testutil.AssertMoney(t, "70", testutil.ReloadStudent(t, f.db, student.ID).Balance)
	pub.AssertExpectations(t)
}

func TestGetTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "100", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)
	other := testutil.CreateStore(t, f.db)

	res, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec("8.25")})
	require.NoError(t, err)
	no := res.Transaction.TransactionNo

	got, err := f.svc.Charge.GetTransaction(ctx, no, 0)
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.StudentID)
	testutil.AssertMoney(t, "8.25", got.Amount)

	got, err = f.svc.Charge.GetTransaction(ctx, no, store.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ID, got.StoreID)

	_, err = f.svc.Charge.GetTransaction(ctx, no, other.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Charge.GetTransaction(ctx, "TXN-missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Transaction not found", err.Error())
}
