package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"campuspay/internal/service"

	"github.com/robfig/cron/v3"
)

// DailyResetJob 每天凌晨兜底清零 daily_spent。
// 扣款时已按日期惰性清零，这个任务不跑也不影响限额判断。
type DailyResetJob struct {
	students *service.StudentService
	cron     *cron.Cron
	schedule string
	force    bool
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDailyResetJob schedule 按 calendar 的时区解释
func NewDailyResetJob(students *service.StudentService, calendar *service.Calendar, schedule string, force bool, logger *slog.Logger) *DailyResetJob {
	logger = logger.With("job", "daily_reset")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(calendar.Location()),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	return &DailyResetJob{
		students: students,
		cron:     c,
		schedule: schedule,
		force:    force,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Schedule 校验并注册 cron 表达式
func (j *DailyResetJob) Schedule(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Run(ctx) }); err != nil {
		return fmt.Errorf("schedule daily reset %q: %w", j.schedule, err)
	}
	j.logger.Info("已注册每日清零任务", "schedule", j.schedule, "force", j.force)
	return nil
}

// Start 启动时先补一次过期行的清零，然后按计划运行，直到 ctx 结束或 Stop
func (j *DailyResetJob) Start(ctx context.Context) {
	if _, err := j.students.ResetDailySpent(ctx, false); err != nil {
		j.logger.Error("启动时清零失败", "error", err)
	}

	j.cron.Start()
	select {
	case <-ctx.Done():
	case <-j.stopCh:
	}
	<-j.cron.Stop().Done()
	j.logger.Info("每日清零任务停止")
}

func (j *DailyResetJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// Run 执行一次清零
func (j *DailyResetJob) Run(ctx context.Context) {
	rows, err := j.students.ResetDailySpent(ctx, j.force)
	if err != nil {
		j.logger.Error("每日清零失败", "error", err)
		return
	}
	j.logger.Info("每日清零完成", "rows", rows)
}
