package job

import (
	"context"
	"log/slog"
	"time"

	"fanpoints/internal/config"
	"fanpoints/internal/infrastructure/metrics"
	"fanpoints/internal/model"
	"fanpoints/internal/repository"

	"gorm.io/gorm"
)

// ReconcileJob 定期核对最近有变动的账户：余额必须等于最新一条流水的 balance_after
//
// 只报警不修复，修复需要人工根据流水判断。
type ReconcileJob struct {
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	stopCh      chan struct{}
	interval    time.Duration
	window      time.Duration
	batchSize   int
	now         func() time.Time
}

func NewReconcileJob(db *gorm.DB, cfg *config.JobsConfig) *ReconcileJob {
	j := &ReconcileJob{
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		stopCh:      make(chan struct{}),
		interval:    cfg.ReconcileInterval,
		window:      cfg.ReconcileWindow,
		batchSize:   cfg.ReconcileBatch,
		now:         time.Now,
	}
	if j.interval <= 0 {
		j.interval = time.Minute
	}
	if j.window <= 0 {
		j.window = 10 * time.Minute
	}
	if j.batchSize <= 0 {
		j.batchSize = 200
	}
	return j
}

func (j *ReconcileJob) Start(ctx context.Context) {
	slog.Info("[ReconcileJob] 对账任务启动", "interval", j.interval, "window", j.window)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			slog.Info("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			checked, mismatched, err := j.RunOnce(ctx)
			if err != nil {
				slog.Error("[ReconcileJob] 对账失败", "error", err)
				continue
			}
			if mismatched > 0 {
				slog.Warn("[ReconcileJob] 本轮发现余额与流水不一致", "checked", checked, "mismatched", mismatched)
			}
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// RunOnce 核对一轮，返回检查的账户数和不一致的账户数
func (j *ReconcileJob) RunOnce(ctx context.Context) (checked, mismatched int, err error) {
	since := j.now().Add(-j.window)
	var afterID int64

	for {
		accounts, err := j.accountRepo.ListUpdatedSince(ctx, since, afterID, j.batchSize)
		if err != nil {
			return checked, mismatched, err
		}

		for _, acc := range accounts {
			ok, err := j.check(ctx, acc)
			if err != nil {
				return checked, mismatched, err
			}
			checked++
			if !ok {
				mismatched++
			}
		}

		if len(accounts) < j.batchSize {
			return checked, mismatched, nil
		}
		afterID = accounts[len(accounts)-1].ID
	}
}

func (j *ReconcileJob) check(ctx context.Context, acc *model.Account) (bool, error) {
	latest, err := j.ledgerRepo.LatestByUser(ctx, acc.UserID)
	if err != nil {
		return false, err
	}
	if matches(acc, latest) {
		return true, nil
	}

	// 读账户和读流水之间可能有新的变动提交，版本号变了说明是并发写入而不是数据错误
	fresh, err := j.accountRepo.GetByUserID(ctx, nil, acc.UserID)
	if err != nil {
		return false, err
	}
	if fresh.Version != acc.Version {
		return true, nil
	}

	metrics.ReconcileMismatchTotal.Inc()
	var balanceAfter any
	if latest != nil {
		balanceAfter = latest.BalanceAfter
	}
	slog.Error("[ReconcileJob] 余额与最新流水不一致",
		"user_id", acc.UserID,
		"balance", acc.Balance,
		"version", acc.Version,
		"latest_balance_after", balanceAfter,
	)
	return false, nil
}

func matches(acc *model.Account, latest *model.LedgerEntry) bool {
	if latest == nil {
		return acc.Balance == 0
	}
	return latest.BalanceAfter == acc.Balance
}
