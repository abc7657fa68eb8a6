package service

import (
	"context"
	"strings"
	"time"

	"campuspay/internal/infrastructure/lock"
	"campuspay/internal/metrics"
	"campuspay/internal/model"
	"campuspay/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RechargeService 管理员充值与余额对账
type RechargeService struct {
	*base
}

func NewRechargeService(b *base) *RechargeService {
	return &RechargeService{base: b}
}

type RechargeRequest struct {
	StudentID int64
	Amount    decimal.Decimal
	Type      string
	Notes     string
	ActorID   int64
}

type RechargeResult struct {
	Recharge   *model.Recharge `json:"recharge"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Recharge 充值，不涉及日限额
func (s *RechargeService) Recharge(ctx context.Context, req *RechargeRequest) (_ *RechargeResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RechargesTotal.WithLabelValues(resultLabel(err)).Inc()
		metrics.OperationDuration.WithLabelValues("recharge").Observe(time.Since(start).Seconds())
	}()

	if !model.ValidAmount(req.Amount) {
		return nil, invalidAmount(req.Amount)
	}
	rechargeType := strings.TrimSpace(req.Type)
	if rechargeType == "" {
		rechargeType = model.RechargeTypeCash
	}

	// 充值和扣款共用学生维度的锁
	release, err := s.acquire(ctx, lock.StudentChargeKey(req.StudentID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result RechargeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.GetByIDForUpdate(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}

		recharge := &model.Recharge{
			RechargeNo: idgen.GenerateRechargeNo(),
			StudentID:  student.ID,
			Amount:     req.Amount,
			Type:       rechargeType,
			Notes:      req.Notes,
			CreatedBy:  req.ActorID,
		}
		if err := s.rechargeRepo.Create(ctx, tx, recharge); err != nil {
			return err
		}

		newBalance := model.RoundMoney(student.Balance.Add(req.Amount))
		if err := s.studentRepo.SetBalance(ctx, tx, student.ID, newBalance); err != nil {
			return err
		}

		result = RechargeResult{Recharge: recharge, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return nil, classify("recharge", err)
	}

	s.logger.Info("充值成功",
		"recharge_no", result.Recharge.RechargeNo,
		"student_id", req.StudentID,
		"amount", req.Amount.StringFixed(2),
		"actor_id", req.ActorID,
		"new_balance", result.NewBalance.StringFixed(2))

	return &result, nil
}

// Reconciliation 余额对账结果：computed = Σ充值 − Σ完成的消费
type Reconciliation struct {
	StudentID       int64           `json:"student_id"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	Recharged       decimal.Decimal `json:"recharged"`
	Spent           decimal.Decimal `json:"spent"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	Diverged        bool            `json:"diverged"`
}

// Reconcile 从流水重算余额并与存储值比较。只读，在没有并发写入时结果才有意义。
func (s *RechargeService) Reconcile(ctx context.Context, studentID int64) (*Reconciliation, error) {
	var rec Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.GetByID(ctx, tx, studentID)
		if err != nil {
			return err
		}
		recharged, err := s.rechargeRepo.SumByStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		spent, err := s.transactionRepo.SumCompletedByStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}

		computed := model.RoundMoney(recharged.Sub(spent))
		stored := model.RoundMoney(student.Balance)
		rec = Reconciliation{
			StudentID:       studentID,
			StoredBalance:   stored,
			Recharged:       recharged,
			Spent:           spent,
			ComputedBalance: computed,
			Diverged:        !stored.Equal(computed),
		}
		return nil
	})
	if err != nil {
		return nil, classify("reconcile", err)
	}
	return &rec, nil
}

const reconcileBatchSize = 200

// ReconcileAll 扫描全部学生，返回余额不一致的记录
func (s *RechargeService) ReconcileAll(ctx context.Context) ([]*Reconciliation, error) {
	var diverged []*Reconciliation
	var afterID int64
	for {
		ids, err := s.studentRepo.ListIDsAfter(ctx, afterID, reconcileBatchSize)
		if err != nil {
			return diverged, classify("list students", err)
		}
		if len(ids) == 0 {
			return diverged, nil
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return diverged, err
			}
			rec, err := s.Reconcile(ctx, id)
			if err != nil {
				return diverged, err
			}
			if rec.Diverged {
				s.logger.Warn("余额对账不一致",
					"student_id", id,
					"stored", rec.StoredBalance.StringFixed(2),
					"computed", rec.ComputedBalance.StringFixed(2))
				diverged = append(diverged, rec)
			}
		}
		afterID = ids[len(ids)-1]
	}
}
