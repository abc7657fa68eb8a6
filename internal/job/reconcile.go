package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campuspay/internal/metrics"
	"campuspay/internal/service"
)

// ReconcileJob 定期核对学生余额与流水，并用聚合结果重写商户待结算镜像
type ReconcileJob struct {
	recharges *service.RechargeService
	stores    *service.StoreService
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	interval  time.Duration
}

func NewReconcileJob(recharges *service.RechargeService, stores *service.StoreService, interval time.Duration, logger *slog.Logger) *ReconcileJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconcileJob{
		recharges: recharges,
		stores:    stores,
		logger:    logger.With("job", "reconcile"),
		stopCh:    make(chan struct{}),
		interval:  interval,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	j.logger.Info("对账任务启动", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// RunOnce 返回余额不一致的学生
func (j *ReconcileJob) RunOnce(ctx context.Context) []*service.Reconciliation {
	diverged, err := j.recharges.ReconcileAll(ctx)
	if err != nil {
		j.logger.Error("余额对账失败", "error", err)
	}
	if len(diverged) > 0 {
		metrics.ReconcileDivergences.Add(float64(len(diverged)))
		j.logger.Warn("发现余额不一致的学生", "count", len(diverged))
	}

	n, err := j.stores.RefreshAllSummaries(ctx)
	if err != nil {
		j.logger.Error("刷新待结算镜像失败", "error", err, "refreshed", n)
	} else {
		j.logger.Info("对账完成", "diverged", len(diverged), "stores_refreshed", n)
	}
	return diverged
}
