package service

import (
	"errors"
	"fmt"

	"campuspay/internal/infrastructure/database"
	"campuspay/internal/infrastructure/lock"
	"campuspay/internal/repository"

	"github.com/shopspring/decimal"
)

// Kind 错误分类，HTTP 层据此决定状态码
type Kind string

const (
	KindNotFound                   Kind = "NotFound"
	KindInvalidAmount              Kind = "InvalidAmount"
	KindInsufficientBalance        Kind = "InsufficientBalance"
	KindDailyLimitExceeded         Kind = "DailyLimitExceeded"
	KindSettlementExceedsAvailable Kind = "SettlementExceedsAvailable"
	KindPaymentExceedsPending      Kind = "PaymentExceedsPending"
	KindSettlementAlreadyCompleted Kind = "SettlementAlreadyCompleted"
	KindUnauthorized               Kind = "Unauthorized"
	KindDuplicate                  Kind = "Duplicate"
	KindStorageFailure             Kind = "StorageFailure"
)

// Error 业务错误。Message 直接展示给调用方，Details 携带可供界面渲染的数值。
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindStorageFailure {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 只比较 Kind，errors.Is(err, service.ErrDailyLimitExceeded) 即可判断分类
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable 存储失败时整个工作单元已回滚，调用方可以原样重试
func (e *Error) Retryable() bool {
	return e.Kind == KindStorageFailure
}

var (
	ErrNotFound                   = &Error{Kind: KindNotFound}
	ErrInvalidAmount              = &Error{Kind: KindInvalidAmount}
	ErrInsufficientBalance        = &Error{Kind: KindInsufficientBalance}
	ErrDailyLimitExceeded         = &Error{Kind: KindDailyLimitExceeded}
	ErrSettlementExceedsAvailable = &Error{Kind: KindSettlementExceedsAvailable}
	ErrPaymentExceedsPending      = &Error{Kind: KindPaymentExceedsPending}
	ErrSettlementAlreadyCompleted = &Error{Kind: KindSettlementAlreadyCompleted}
	ErrUnauthorized               = &Error{Kind: KindUnauthorized}
	ErrDuplicate                  = &Error{Kind: KindDuplicate}
	ErrStorageFailure             = &Error{Kind: KindStorageFailure}
)

// KindOf 非 *Error 的错误一律视为存储失败
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func invalidAmount(amount decimal.Decimal) *Error {
	return &Error{
		Kind:    KindInvalidAmount,
		Message: fmt.Sprintf("Invalid amount %s: must be greater than 0 with at most 2 decimal places", amount.String()),
		Details: map[string]any{"amount": amount.String()},
	}
}

func insufficientBalance(balance, amount decimal.Decimal) *Error {
	return &Error{
		Kind:    KindInsufficientBalance,
		Message: fmt.Sprintf("Insufficient balance. Current balance: %s, attempted amount: %s", money(balance), money(amount)),
		Details: map[string]any{"balance": money(balance), "attempted_amount": money(amount)},
	}
}

func dailyLimitExceeded(limit, remaining, amount decimal.Decimal) *Error {
	return &Error{
		Kind: KindDailyLimitExceeded,
		Message: fmt.Sprintf("Daily spending limit exceeded. Available limit for today: %s, attempted amount: %s",
			money(remaining), money(amount)),
		Details: map[string]any{
			"daily_limit":      money(limit),
			"remaining_limit":  money(remaining),
			"attempted_amount": money(amount),
		},
	}
}

func settlementExceedsAvailable(available, amount decimal.Decimal) *Error {
	return &Error{
		Kind: KindSettlementExceedsAvailable,
		Message: fmt.Sprintf("Settlement amount %s exceeds available amount %s",
			money(amount), money(available)),
		Details: map[string]any{"pending_available": money(available), "requested_amount": money(amount)},
	}
}

func paymentExceedsPending(pending, amount decimal.Decimal) *Error {
	return &Error{
		Kind:    KindPaymentExceedsPending,
		Message: fmt.Sprintf("Payment amount %s exceeds pending amount %s", money(amount), money(pending)),
		Details: map[string]any{"pending_amount": money(pending), "payment_amount": money(amount)},
	}
}

func settlementAlreadyCompleted(id int64) *Error {
	return &Error{
		Kind:    KindSettlementAlreadyCompleted,
		Message: "Settlement is already completed",
		Details: map[string]any{"settlement_id": id},
	}
}

// Unauthorized 操作者的商户身份与目标商户不一致
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

var duplicateMessages = map[string]string{
	"stores.name":                 "A store with this name already exists",
	"stores.email":                "A store with this email already exists",
	"stores.mobile_number":        "A store with this mobile number already exists",
	"transactions.transaction_no": "Duplicate transaction number, please retry",
	"recharges.recharge_no":       "Duplicate recharge number, please retry",
	"settlements.reference_id":    "Duplicate settlement reference, please retry",
	"store_settlements.store_id":  "Settlement summary already exists for this store",
}

func duplicate(field string, cause error) *Error {
	msg, ok := duplicateMessages[field]
	if !ok {
		msg = "Duplicate value"
	}
	return &Error{
		Kind:    KindDuplicate,
		Message: msg,
		Details: map[string]any{"field": field},
		Err:     cause,
	}
}

// notFound 把仓储层的哨兵错误翻译成 NotFound，其余原样返回
func notFound(err error) error {
	switch {
	case errors.Is(err, repository.ErrStudentNotFound):
		return &Error{Kind: KindNotFound, Message: "Student not found", Err: err}
	case errors.Is(err, repository.ErrStoreNotFound):
		return &Error{Kind: KindNotFound, Message: "Store not found", Err: err}
	case errors.Is(err, repository.ErrSettlementNotFound):
		return &Error{Kind: KindNotFound, Message: "Settlement not found", Err: err}
	case errors.Is(err, repository.ErrTransactionNotFound):
		return &Error{Kind: KindNotFound, Message: "Transaction not found", Err: err}
	}
	return err
}

// classify 工作单元结束后的统一出口：业务错误原样返回，唯一约束冲突转为 Duplicate，
// 其余都是可重试的存储失败
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	err = notFound(err)
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if field, ok := database.UniqueViolation(err); ok {
		return duplicate(field, err)
	}
	if errors.Is(err, lock.ErrLockFailed) {
		return &Error{Kind: KindStorageFailure, Message: "System busy, please retry", Err: err}
	}
	return &Error{
		Kind:    KindStorageFailure,
		Message: "The operation could not be completed, please retry",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}
