package service

import (
	"context"
	"errors"
	"testing"

	"campuspay/internal/model"
	"campuspay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "0", "100", "0", testToday)

	t.Run("credits balance and records recharge", func(t *testing.T) {
		res, err := f.svc.Recharge.Recharge(ctx, &RechargeRequest{
			StudentID: student.ID,
			Amount:    dec("250.75"),
			Type:      model.RechargeTypeTransfer,
			Notes:     "term fees top-up",
			ActorID:   42,
		})
		require.NoError(t, err)
		testutil.AssertMoney(t, "250.75", res.NewBalance)
		assert.Equal(t, model.RechargeTypeTransfer, res.Recharge.Type)
		assert.Equal(t, int64(42), res.Recharge.CreatedBy)
		assert.NotEmpty(t, res.Recharge.RechargeNo)
	})

	t.Run("empty type defaults to cash", func(t *testing.T) {
		res, err := f.svc.Recharge.Recharge(ctx, &RechargeRequest{StudentID: student.ID, Amount: dec("0.25"), ActorID: 1})
		require.NoError(t, err)
		assert.Equal(t, model.RechargeTypeCash, res.Recharge.Type)
		testutil.AssertMoney(t, "251", res.NewBalance)
	})

	t.Run("rejects invalid amounts", func(t *testing.T) {
		for _, a := range []string{"0", "-10", "5.555"} {
			_, err := f.svc.Recharge.Recharge(ctx, &RechargeRequest{StudentID: student.ID, Amount: dec(a)})
			assert.True(t, errors.Is(err, ErrInvalidAmount), a)
		}
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := f.svc.Recharge.Recharge(ctx, &RechargeRequest{StudentID: 777, Amount: dec("1")})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	testutil.AssertMoney(t, "251", testutil.ReloadStudent(t, f.db, student.ID).Balance)
	// 充值不触发商户事件
	assert.Empty(t, f.pub.all())
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.db, "0", "0", "0", testToday)
	store := testutil.CreateStore(t, f.db)

	_, err := f.svc.Recharge.Recharge(ctx, &RechargeRequest{StudentID: student.ID, Amount: dec("100"), ActorID: 1})
	require.NoError(t, err)
	_, err = f.svc.Recharge.Recharge(ctx, &RechargeRequest{StudentID: student.ID, Amount: dec("20.30"), ActorID: 1})
	require.NoError(t, err)
	for _, a := range []string{"12.10", "7.05", "0.15"} {
		_, err := f.svc.Charge.Charge(ctx, &ChargeRequest{StudentID: student.ID, StoreID: store.ID, Amount: dec(a)})
		require.NoError(t, err)
	}

	rec, err := f.svc.Recharge.Reconcile(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, rec.Diverged)
	testutil.AssertMoney(t, "120.30", rec.Recharged)
	testutil.AssertMoney(t, "19.30", rec.Spent)
	testutil.AssertMoney(t, "101.00", rec.ComputedBalance)
	testutil.AssertMoney(t, "101.00", rec.StoredBalance)

	diverged, err := f.svc.Recharge.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, diverged)

	t.Run("detects tampered balance", func(t *testing.T) {
		require.NoError(t, f.db.Model(&model.Student{}).Where("id = ?", student.ID).
			Update("balance", dec("150")).Error)

		rec, err := f.svc.Recharge.Reconcile(ctx, student.ID)
		require.NoError(t, err)
		assert.True(t, rec.Diverged)
		testutil.AssertMoney(t, "150", rec.StoredBalance)

		diverged, err := f.svc.Recharge.ReconcileAll(ctx)
		require.NoError(t, err)
		require.Len(t, diverged, 1)
		assert.Equal(t, student.ID, diverged[0].StudentID)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := f.svc.Recharge.Reconcile(ctx, 404)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
