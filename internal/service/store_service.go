package service

import (
	"context"
	"strings"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StoreService 商户登记与待结算镜像维护
type StoreService struct {
	*base
}

func NewStoreService(b *base) *StoreService {
	return &StoreService{base: b}
}

type RegisterStoreRequest struct {
	Name         string
	Type         string
	OwnerName    string
	MobileNumber string
	Email        string
}

// Register 商户与其待结算镜像在同一事务中创建
func (s *StoreService) Register(ctx context.Context, req *RegisterStoreRequest) (*model.Store, error) {
	store := &model.Store{
		Name:         strings.TrimSpace(req.Name),
		Type:         req.Type,
		OwnerName:    req.OwnerName,
		MobileNumber: strings.TrimSpace(req.MobileNumber),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Balance:      decimal.Zero,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.storeRepo.Create(ctx, tx, store); err != nil {
			return err
		}
		return s.storeSettlementRepo.Create(ctx, tx, &model.StoreSettlement{
			StoreID:       store.ID,
			PendingAmount: decimal.Zero,
		})
	})
	if err != nil {
		return nil, classify("register store", err)
	}

	s.logger.Info("商户登记成功", "store_id", store.ID, "name", store.Name)
	return store, nil
}

func (s *StoreService) Get(ctx context.Context, storeID int64) (*model.Store, error) {
	store, err := s.storeRepo.GetByID(ctx, nil, storeID)
	if err != nil {
		return nil, classify("get store", err)
	}
	return store, nil
}

// RefreshSummary 用聚合结果重写镜像：累计交易额 − 已完成结算总额
func (s *StoreService) RefreshSummary(ctx context.Context, storeID int64) (*model.StoreSettlement, error) {
	var row *model.StoreSettlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 与结算申请同样先锁商户行，避免读到一半的打款
		if _, err := s.storeRepo.GetByIDForUpdate(ctx, tx, storeID); err != nil {
			return err
		}
		total, err := s.transactionRepo.SumCompletedByStore(ctx, tx, storeID)
		if err != nil {
			return err
		}
		completed, _, _, err := s.settlementRepo.SettlementTotals(ctx, tx, storeID)
		if err != nil {
			return err
		}

		pending := model.RoundMoney(total.Sub(completed))
		if pending.IsNegative() {
			pending = decimal.Zero
		}
		if err := s.storeSettlementRepo.Upsert(ctx, tx, storeID, pending); err != nil {
			return err
		}
		row, err = s.storeSettlementRepo.GetByStoreID(ctx, tx, storeID)
		return err
	})
	if err != nil {
		return nil, classify("refresh store summary", err)
	}
	return row, nil
}

// RefreshAllSummaries 逐个商户重写镜像，返回处理的商户数
func (s *StoreService) RefreshAllSummaries(ctx context.Context) (int, error) {
	ids, err := s.storeRepo.ListIDs(ctx)
	if err != nil {
		return 0, classify("list stores", err)
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.RefreshSummary(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
