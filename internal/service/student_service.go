package service

import (
	"context"
	"strings"

	"campuspay/internal/metrics"
	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StudentService 学生登记、日限额维护、每日清零
type StudentService struct {
	*base
	defaultDailyLimit decimal.Decimal
}

func NewStudentService(b *base, defaultDailyLimit decimal.Decimal) *StudentService {
	return &StudentService{base: b, defaultDailyLimit: defaultDailyLimit}
}

type RegisterStudentRequest struct {
	Name         string
	Class        string
	GuardianName string
	PhotoURL     string
	DailyLimit   *decimal.Decimal // nil 时使用默认限额
}

func validLimit(d decimal.Decimal) bool {
	return !d.IsNegative() && model.IsMoneyPrecision(d)
}

// Register 新学生余额和当日消费为 0
func (s *StudentService) Register(ctx context.Context, req *RegisterStudentRequest) (*model.Student, error) {
	limit := s.defaultDailyLimit
	if req.DailyLimit != nil {
		limit = *req.DailyLimit
	}
	if !validLimit(limit) {
		return nil, invalidAmount(limit)
	}

	student := &model.Student{
		Name:          strings.TrimSpace(req.Name),
		Class:         req.Class,
		GuardianName:  req.GuardianName,
		PhotoURL:      req.PhotoURL,
		Balance:       decimal.Zero,
		DailyLimit:    limit,
		DailySpent:    decimal.Zero,
		LastResetDate: s.calendar.Today(),
	}
	if err := s.studentRepo.Create(ctx, nil, student); err != nil {
		return nil, classify("register student", err)
	}

	s.logger.Info("学生登记成功", "student_id", student.ID, "daily_limit", limit.StringFixed(2))
	return student, nil
}

// SetDailyLimit 修改日限额并记录变更历史，0 表示不限额
func (s *StudentService) SetDailyLimit(ctx context.Context, studentID int64, limit decimal.Decimal, actorID int64) (*model.Student, error) {
	if !validLimit(limit) {
		return nil, invalidAmount(limit)
	}

	var student *model.Student
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		student, err = s.studentRepo.GetByIDForUpdate(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if err := s.studentRepo.SetDailyLimit(ctx, tx, studentID, limit); err != nil {
			return err
		}
		if err := s.studentRepo.CreateLimitChange(ctx, tx, &model.DailyLimitChange{
			StudentID: studentID,
			OldLimit:  student.DailyLimit,
			NewLimit:  limit,
			ChangedBy: actorID,
		}); err != nil {
			return err
		}
		student.DailyLimit = limit
		return nil
	})
	if err != nil {
		return nil, classify("set daily limit", err)
	}

	s.logger.Info("日限额已更新", "student_id", studentID, "daily_limit", limit.StringFixed(2), "actor_id", actorID)
	return student, nil
}

// StudentView 商户扫码后看到的学生信息，当日消费已按惰性清零折算
type StudentView struct {
	*model.Student
	EffectiveDailySpent decimal.Decimal  `json:"effective_daily_spent"`
	RemainingDailyLimit *decimal.Decimal `json:"remaining_daily_limit"` // 不限额时为 null
}

func (s *StudentService) Get(ctx context.Context, studentID int64) (*StudentView, error) {
	student, err := s.studentRepo.GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, classify("get student", err)
	}

	today := s.calendar.Today()
	view := &StudentView{
		Student:             student,
		EffectiveDailySpent: model.EffectiveDailySpent(student, today),
	}
	if remaining, ok := model.RemainingDailyAllowance(student, today); ok {
		view.RemainingDailyLimit = &remaining
	}
	return view, nil
}

// ResetDailySpent 批量清零当日消费。
// force 为 false 时只处理上次清零早于今天的行；扣款本身已做惰性清零，这里只是兜底。
func (s *StudentService) ResetDailySpent(ctx context.Context, force bool) (int64, error) {
	today := s.calendar.Today()
	rows, err := s.studentRepo.ResetDailySpent(ctx, today, force)
	if err != nil {
		return 0, classify("reset daily spent", err)
	}
	metrics.DailyResetRows.Add(float64(rows))
	s.logger.Info("当日消费已清零", "date", today, "force", force, "rows", rows)
	return rows, nil
}
