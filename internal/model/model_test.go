package model

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"positive two decimals", "10.25", true},
		{"positive integer", "3", true},
		{"one cent", "0.01", true},
		{"zero", "0", false},
		{"negative", "-5.00", false},
		{"three decimals", "1.005", false},
		{"trailing zeros are fine", "2.500", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAmount(dec(tt.input)))
		})
	}
}

func TestNearlyZero(t *testing.T) {
	assert.True(t, NearlyZero(decimal.Zero))
	assert.True(t, NearlyZero(dec("0.01")))
	assert.True(t, NearlyZero(dec("-0.01")))
	assert.False(t, NearlyZero(dec("0.02")))
}

func TestEffectiveDailySpent(t *testing.T) {
	s := &Student{DailyLimit: dec("200"), DailySpent: dec("150"), LastResetDate: "2024-03-10"}

	t.Run("same day keeps stored value", func(t *testing.T) {
		assert.True(t, EffectiveDailySpent(s, "2024-03-10").Equal(dec("150")))
		// second check on the same day is a no-op
		assert.True(t, EffectiveDailySpent(s, "2024-03-10").Equal(dec("150")))
	})

	t.Run("next day reads as zero", func(t *testing.T) {
		assert.True(t, EffectiveDailySpent(s, "2024-03-11").IsZero())
	})

	t.Run("month boundary compares as dates", func(t *testing.T) {
		s2 := &Student{DailySpent: dec("10"), LastResetDate: "2024-02-29"}
		assert.True(t, EffectiveDailySpent(s2, "2024-03-01").IsZero())
	})
}

func TestRemainingDailyAllowance(t *testing.T) {
	s := &Student{DailyLimit: dec("200"), DailySpent: dec("190"), LastResetDate: "2024-03-10"}

	remaining, ok := RemainingDailyAllowance(s, "2024-03-10")
	assert.True(t, ok)
	assert.Equal(t, "10.00", remaining.StringFixed(2))

	remaining, ok = RemainingDailyAllowance(s, "2024-03-11")
	assert.True(t, ok)
	assert.Equal(t, "200.00", remaining.StringFixed(2))

	unlimited := &Student{DailyLimit: decimal.Zero}
	_, ok = RemainingDailyAllowance(unlimited, "2024-03-10")
	assert.False(t, ok)
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(SettlementStatusRequested, SettlementStatusCompleted))
	assert.True(t, CanTransitionTo(SettlementStatusPending, SettlementStatusCompleted))
	assert.True(t, CanTransitionTo(SettlementStatusApproved, SettlementStatusCompleted))
	assert.False(t, CanTransitionTo(SettlementStatusCompleted, SettlementStatusRequested))
	assert.False(t, CanTransitionTo(SettlementStatusRequested, SettlementStatusApproved))
	assert.False(t, CanTransitionTo("unknown", SettlementStatusCompleted))
}

func TestComputePendingAvailable(t *testing.T) {
	a := &SettlementAmounts{
		TotalAmount:     dec("1000"),
		CompletedAmount: dec("400"),
	}
	a.ComputePendingAvailable()
	assert.Equal(t, "600.00", a.PendingAvailable.StringFixed(2))

	a.TotalRequested = dec("700")
	a.ComputePendingAvailable()
	assert.True(t, a.PendingAvailable.IsZero())
}

func TestTruncateLastError(t *testing.T) {
	assert.Equal(t, "short", TruncateLastError("short"))

	ascii := strings.Repeat("a", OutboxLastErrorMax+10)
	assert.Len(t, TruncateLastError(ascii), OutboxLastErrorMax)

	// 3 字节的汉字，511 字节处落在字符中间
	long := "x" + strings.Repeat("连", 300)
	got := TruncateLastError(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), OutboxLastErrorMax)
	assert.Equal(t, 1+170*3, len(got))
}
