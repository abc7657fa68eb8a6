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

// SettlementService 商户结算：申请、付款、可结算额度
//
// 可结算额度每次都从 transactions / settlements 实时聚合，store_settlements 镜像只用于展示。
type SettlementService struct {
	*base
}

func NewSettlementService(b *base) *SettlementService {
	return &SettlementService{base: b}
}

type SettlementResult struct {
	Settlement *model.Settlement        `json:"settlement"`
	Amounts    *model.SettlementAmounts `json:"amounts"`
}

// SettlementUpdatePayload settlementUpdate 事件内容
type SettlementUpdatePayload struct {
	Type       string                   `json:"type"`
	Settlement *model.Settlement        `json:"settlement"`
	Amounts    *model.SettlementAmounts `json:"amounts"`
}

// Available 商户当前可申请结算的额度
func (s *SettlementService) Available(ctx context.Context, storeID int64) (*model.SettlementAmounts, error) {
	if _, err := s.storeRepo.GetByID(ctx, nil, storeID); err != nil {
		return nil, classify("get store", err)
	}
	amounts, err := s.amounts(ctx, nil, storeID)
	if err != nil {
		return nil, classify("settlement amounts", err)
	}
	return amounts, nil
}

func (s *SettlementService) amounts(ctx context.Context, tx *gorm.DB, storeID int64) (*model.SettlementAmounts, error) {
	total, err := s.transactionRepo.SumCompletedByStore(ctx, tx, storeID)
	if err != nil {
		return nil, err
	}
	completed, settled, requested, err := s.settlementRepo.SettlementTotals(ctx, tx, storeID)
	if err != nil {
		return nil, err
	}

	a := &model.SettlementAmounts{
		TotalAmount:     total,
		CompletedAmount: completed,
		TotalSettled:    settled,
		TotalRequested:  requested,
	}
	a.ComputePendingAvailable()
	return a, nil
}

// Request 商户申请结算。锁定商户行后重新计算可结算额度，避免两笔申请重复占用同一批交易。
func (s *SettlementService) Request(ctx context.Context, storeID int64, amount decimal.Decimal, actorID int64) (_ *SettlementResult, err error) {
	start := time.Now()
	defer func() {
		metrics.SettlementOpsTotal.WithLabelValues("request", resultLabel(err)).Inc()
		metrics.OperationDuration.WithLabelValues("settlement_request").Observe(time.Since(start).Seconds())
	}()

	if !model.ValidAmount(amount) {
		return nil, invalidAmount(amount)
	}

	release, err := s.acquire(ctx, lock.StoreSettlementKey(storeID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result SettlementResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.storeRepo.GetByIDForUpdate(ctx, tx, storeID); err != nil {
			return err
		}

		before, err := s.amounts(ctx, tx, storeID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(before.PendingAvailable) {
			return settlementExceedsAvailable(before.PendingAvailable, amount)
		}

		settlement := &model.Settlement{
			StoreID:                storeID,
			TotalTransactionAmount: amount,
			SettledAmount:          decimal.Zero,
			PendingAmount:          amount,
			Status:                 model.SettlementStatusRequested,
			ReferenceID:            idgen.GenerateSettlementRef(),
			CreatedBy:              actorID,
		}
		if err := s.settlementRepo.Create(ctx, tx, settlement); err != nil {
			return err
		}
		if err := s.settlementRepo.CreateLog(ctx, tx, &model.SettlementLog{
			SettlementID: settlement.ID,
			Action:       model.SettlementActionRequest,
			Amount:       amount,
			PerformedBy:  actorID,
		}); err != nil {
			return err
		}

		after, err := s.amounts(ctx, tx, storeID)
		if err != nil {
			return err
		}
		result = SettlementResult{Settlement: settlement, Amounts: after}
		return nil
	})
	if err != nil {
		return nil, classify("request settlement", err)
	}

	s.logger.Info("结算申请成功",
		"settlement_id", result.Settlement.ID,
		"reference_id", result.Settlement.ReferenceID,
		"store_id", storeID,
		"amount", amount.StringFixed(2),
		"actor_id", actorID)

	s.notify(ctx, event.StoreChannel(storeID), event.SettlementUpdate, &SettlementUpdatePayload{
		Type:       event.SettlementRequest,
		Settlement: result.Settlement,
		Amounts:    result.Amounts,
	})

	return &result, nil
}

// ApplyPayment 对结算单付款，支持多次部分付款。
// pending 残差不超过 0.01 时结算单完成，并从待结算镜像中扣除该单总额。
func (s *SettlementService) ApplyPayment(ctx context.Context, settlementID int64, amount decimal.Decimal, actorID int64) (_ *SettlementResult, err error) {
	start := time.Now()
	defer func() {
		metrics.SettlementOpsTotal.WithLabelValues("payment", resultLabel(err)).Inc()
		metrics.OperationDuration.WithLabelValues("settlement_payment").Observe(time.Since(start).Seconds())
	}()

	if !model.ValidAmount(amount) {
		return nil, invalidAmount(amount)
	}

	release, err := s.acquire(ctx, lock.SettlementPaymentKey(settlementID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result SettlementResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settlement, err := s.settlementRepo.GetByIDForUpdate(ctx, tx, settlementID)
		if err != nil {
			return err
		}
		if settlement.IsCompleted() {
			return settlementAlreadyCompleted(settlement.ID)
		}
		if amount.GreaterThan(settlement.PendingAmount) {
			return paymentExceedsPending(settlement.PendingAmount, amount)
		}

		settlement.SettledAmount = model.RoundMoney(settlement.SettledAmount.Add(amount))
		settlement.PendingAmount = model.RoundMoney(settlement.TotalTransactionAmount.Sub(settlement.SettledAmount))

		completed := model.NearlyZero(settlement.PendingAmount) &&
			model.CanTransitionTo(settlement.Status, model.SettlementStatusCompleted)
		if completed {
			settlement.Status = model.SettlementStatusCompleted
		}

		if err := s.settlementRepo.UpdatePayment(ctx, tx, settlement); err != nil {
			return err
		}
		if err := s.settlementRepo.CreateLog(ctx, tx, &model.SettlementLog{
			SettlementID: settlement.ID,
			Action:       model.SettlementActionPayment,
			Amount:       amount,
			PerformedBy:  actorID,
		}); err != nil {
			return err
		}

		if completed {
			ok, err := s.storeSettlementRepo.SubtractPending(ctx, tx, settlement.StoreID,
				settlement.TotalTransactionAmount, s.calendar.Now())
			if err != nil {
				return err
			}
			if !ok {
				s.logger.Warn("待结算镜像不存在，跳过扣减", "store_id", settlement.StoreID)
			}
		}

		amounts, err := s.amounts(ctx, tx, settlement.StoreID)
		if err != nil {
			return err
		}
		result = SettlementResult{Settlement: settlement, Amounts: amounts}
		return nil
	})
	if err != nil {
		return nil, classify("apply payment", err)
	}

	s.logger.Info("结算付款成功",
		"settlement_id", settlementID,
		"store_id", result.Settlement.StoreID,
		"amount", amount.StringFixed(2),
		"status", result.Settlement.Status,
		"pending", result.Settlement.PendingAmount.StringFixed(2),
		"actor_id", actorID)

	s.notify(ctx, event.StoreChannel(result.Settlement.StoreID), event.SettlementUpdate, &SettlementUpdatePayload{
		Type:       event.SettlementPaid,
		Settlement: result.Settlement,
		Amounts:    result.Amounts,
	})

	return &result, nil
}

// Get 查询结算单
func (s *SettlementService) Get(ctx context.Context, settlementID int64) (*model.Settlement, error) {
	settlement, err := s.settlementRepo.GetByID(ctx, nil, settlementID)
	if err != nil {
		return nil, classify("get settlement", err)
	}
	return settlement, nil
}
