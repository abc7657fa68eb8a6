package service

import (
	"context"
	"time"

	"campuspay/internal/event"
	"campuspay/internal/infrastructure/lock"
	"campuspay/internal/metrics"
	"campuspay/internal/model"
	"campuspay/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ChargeService 学生消费：余额和日限额校验，扣款、记流水、商户入账在同一个事务里完成
type ChargeService struct {
	*base
}

func NewChargeService(b *base) *ChargeService {
	return &ChargeService{base: b}
}

type ChargeRequest struct {
	StudentID int64
	StoreID   int64
	Amount    decimal.Decimal
}

type ChargeResult struct {
	Transaction   *model.Transaction `json:"transaction"`
	NewBalance    decimal.Decimal    `json:"new_balance"`
	NewDailySpent decimal.Decimal    `json:"new_daily_spent"`
}

// TransactionUpdatePayload transactionUpdate 事件内容
type TransactionUpdatePayload struct {
	Type string             `json:"type"`
	Data *model.Transaction `json:"data"`
}

// Charge 扣款
//
// 流程：
//  1. 锁定学生行，读取余额、限额、当日已消费
//  2. last_reset_date 早于今天时当日已消费按 0 计算，并在本次写入中把日期更新为今天
//  3. 校验余额，再校验日限额
//  4. 扣余额、写当日已消费、插入流水、商户累计入账、更新待结算镜像
//  5. 提交后通知商户频道
func (s *ChargeService) Charge(ctx context.Context, req *ChargeRequest) (_ *ChargeResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ChargesTotal.WithLabelValues(resultLabel(err)).Inc()
		metrics.OperationDuration.WithLabelValues("charge").Observe(time.Since(start).Seconds())
	}()

	if !model.ValidAmount(req.Amount) {
		return nil, invalidAmount(req.Amount)
	}

	release, err := s.acquire(ctx, lock.StudentChargeKey(req.StudentID))
	if err != nil {
		return nil, err
	}
	defer release()

	today := s.calendar.Today()
	var result ChargeResult

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.GetByIDForUpdate(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		if _, err := s.storeRepo.GetByID(ctx, tx, req.StoreID); err != nil {
			return err
		}

		spent := model.EffectiveDailySpent(student, today)

		if student.Balance.LessThan(req.Amount) {
			return insufficientBalance(student.Balance, req.Amount)
		}
		if student.HasDailyLimit() && spent.Add(req.Amount).GreaterThan(student.DailyLimit) {
			remaining, _ := model.RemainingDailyAllowance(student, today)
			return dailyLimitExceeded(student.DailyLimit, remaining, req.Amount)
		}

		newBalance := model.RoundMoney(student.Balance.Sub(req.Amount))
		newSpent := model.RoundMoney(spent.Add(req.Amount))

		if err := s.studentRepo.ApplySpending(ctx, tx, student.ID, newBalance, newSpent, today); err != nil {
			return err
		}

		trans := &model.Transaction{
			TransactionNo:    idgen.GenerateTransactionNo(),
			StudentID:        student.ID,
			StoreID:          req.StoreID,
			Amount:           req.Amount,
			Type:             model.TransactionTypePurchase,
			Status:           model.TransactionStatusCompleted,
			DailyLimitAtTime: student.DailyLimit,
			DailySpentBefore: spent,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return err
		}

		if err := s.storeRepo.Credit(ctx, tx, req.StoreID, req.Amount); err != nil {
			return err
		}
		// 镜像缺失不影响扣款，RefreshSummary 会补齐
		if _, err := s.storeSettlementRepo.AddPending(ctx, tx, req.StoreID, req.Amount); err != nil {
			return err
		}

		result = ChargeResult{
			Transaction:   trans,
			NewBalance:    newBalance,
			NewDailySpent: newSpent,
		}
		return nil
	})
	if err != nil {
		return nil, classify("charge", err)
	}

	metrics.ChargedAmount.Add(req.Amount.InexactFloat64())
	s.logger.Info("消费成功",
		"transaction_no", result.Transaction.TransactionNo,
		"student_id", req.StudentID,
		"store_id", req.StoreID,
		"amount", req.Amount.StringFixed(2),
		"new_balance", result.NewBalance.StringFixed(2))

	s.notify(ctx, event.StoreChannel(req.StoreID), event.TransactionUpdate, &TransactionUpdatePayload{
		Type: "transaction",
		Data: result.Transaction,
	})

	return &result, nil
}

// GetTransaction 按流水号查询消费记录。storeID 非 0 时只允许查询该商户的流水
func (s *ChargeService) GetTransaction(ctx context.Context, transactionNo string, storeID int64) (*model.Transaction, error) {
	trans, err := s.transactionRepo.GetByTransactionNo(ctx, nil, transactionNo)
	if err != nil {
		return nil, classify("get transaction", err)
	}
	if storeID != 0 && trans.StoreID != storeID {
		return nil, Unauthorized("Not authorized for this transaction")
	}
	return trans, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}
