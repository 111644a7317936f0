package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"fanpoints/internal/config"
	"fanpoints/internal/game"
	"fanpoints/internal/infrastructure/lock"
	"fanpoints/internal/infrastructure/metrics"
	"fanpoints/internal/model"
	"fanpoints/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxAmount 单次下注、捐赠、充值的积分上限
const MaxAmount int64 = 1_000_000_000_000

// accountStore 余额存储，测试时可替换
type accountStore interface {
	Create(ctx context.Context, tx *gorm.DB, account *model.Account) error
	GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*model.Account, error)
	CompareAndSet(ctx context.Context, tx *gorm.DB, userID string, expectedBalance int64, expectedVersion int64, newBalance int64) error
}

// PointsService 积分变动的唯一入口
//
// 【一致性保证】
// 1. 每次尝试在一个数据库事务内完成：读账户 → 校验 → CAS 更新余额 → 写流水 → 写 outbox
// 2. CAS 冲突时整个事务回滚，从读账户开始重试，超过次数返回 ErrContention
// 3. 余额和流水要么同时提交，要么都不可见
type PointsService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config

	accounts   accountStore
	ledger     *repository.LedgerRepository
	bets       *repository.BetRepository
	outbox     *repository.OutboxRepository
	attendance *AttendanceGate
	evaluator  *game.Evaluator

	now            func() time.Time
	drawer         game.Drawer
	paymentMethods map[string]struct{}
}

type Option func(*PointsService)

// WithClock 替换时钟，签到日期和流水时间都取自它
func WithClock(now func() time.Time) Option {
	return func(s *PointsService) { s.now = now }
}

// WithDrawer 替换开奖随机数来源
func WithDrawer(d game.Drawer) Option {
	return func(s *PointsService) { s.drawer = d }
}

// NewPointsService redisClient 可以为 nil，此时不使用用户锁
func NewPointsService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, opts ...Option) (*PointsService, error) {
	s := &PointsService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		accounts:    repository.NewAccountRepository(db),
		ledger:      repository.NewLedgerRepository(db),
		bets:        repository.NewBetRepository(db),
		outbox:      repository.NewOutboxRepository(db),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load attendance timezone: %w", err)
	}
	s.attendance = NewAttendanceGate(repository.NewAttendanceRepository(db), loc, s.now)
	s.evaluator = game.NewEvaluator(game.OddsTableFromConfig(cfg.Game), s.drawer)

	s.paymentMethods = make(map[string]struct{}, len(cfg.Ledger.PaymentMethods))
	for _, m := range cfg.Ledger.PaymentMethods {
		s.paymentMethods[m] = struct{}{}
	}
	return s, nil
}

// ============================================================================
// 请求/响应结构
// ============================================================================

type BalanceResult struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	EntryNo string `json:"entry_no,omitempty"`
}

type AttendanceResult struct {
	Granted bool   `json:"granted"`
	Balance int64  `json:"balance"`
	Date    string `json:"date"`
	Reward  int64  `json:"reward"`
}

type BetResult struct {
	TicketID    string  `json:"ticket_id"`
	BettingType string  `json:"betting_type"`
	Stake       int64   `json:"stake"`
	Outcome     string  `json:"outcome"`
	Payout      int64   `json:"payout"`
	Balance     int64   `json:"balance"`
	RandomValue float64 `json:"random_value"`
	SuccessRate float64 `json:"success_rate"`
	Odds        float64 `json:"odds"`
	Seed        string  `json:"seed"`
}

// AuditReport 按提交顺序回放流水的结果
type AuditReport struct {
	UserID   string `json:"user_id"`
	Balance  int64  `json:"balance"`
	Replayed int64  `json:"replayed"`
	Entries  int    `json:"entries"`
	// BrokenEntryNo 第一条 balance_after 与回放结果不一致的流水
	BrokenEntryNo string `json:"broken_entry_no,omitempty"`
	Consistent    bool   `json:"consistent"`
}

// ============================================================================
// 积分变动
// ============================================================================

// OpenAccount 注册时开户，初始积分记一条 ACCOUNT_OPENING 流水，保证回放能还原余额
func (s *PointsService) OpenAccount(ctx context.Context, userID string) (*BalanceResult, error) {
	initial := s.cfg.Ledger.InitialBalance
	res := &BalanceResult{UserID: userID, Balance: initial}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.Create(ctx, tx, &model.Account{UserID: userID, Balance: initial}); err != nil {
			return err
		}
		entry := &model.LedgerEntry{
			UserID:       userID,
			Kind:         model.EntryKindAccountOpening,
			Delta:        initial,
			BalanceAfter: initial,
			CreatedAt:    s.now(),
		}
		if err := s.appendEntry(ctx, tx, entry); err != nil {
			return err
		}
		res.EntryNo = entry.EntryNo
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}

	slog.Info("开户成功", "user_id", userID, "balance", initial)
	return res, nil
}

// CreditAttendance 签到奖励，同一天重复签到返回 ErrAlreadyMarked
func (s *PointsService) CreditAttendance(ctx context.Context, userID string) (*AttendanceResult, error) {
	reward := s.cfg.Attendance.Reward
	var date string

	account, err := s.mutate(ctx, "attendance", userID, func(m *mutation) error {
		d, granted, err := s.attendance.TryMark(ctx, m.tx, userID)
		if err != nil {
			return err
		}
		if !granted {
			return ErrAlreadyMarked
		}
		date = d
		_, err = m.apply(model.EntryKindAttendanceCredit, reward, map[string]any{"date": d})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &AttendanceResult{Granted: true, Balance: account.Balance, Date: date, Reward: reward}, nil
}

// PlaceBet 下注
//
// 开奖在重试循环之前完成，冲突重试不会重新抽奖。
// 同一事务内依次写 BET_STAKE 和 BET_PAYOUT（输时 delta 为 0）两条流水和一张下注单。
func (s *PointsService) PlaceBet(ctx context.Context, userID string, stake int64, bettingType string) (*BetResult, error) {
	if stake <= 0 || stake > MaxAmount {
		return nil, ErrInvalidAmount
	}

	result, err := s.evaluator.Evaluate(stake, bettingType)
	if err != nil {
		return nil, translateError(err)
	}

	ticketID := uuid.NewString()
	seed := fmt.Sprintf("%d", result.Seed)

	account, err := s.mutate(ctx, "bet", userID, func(m *mutation) error {
		if _, err := m.apply(model.EntryKindBetStake, -stake, map[string]any{
			"ticket_id":    ticketID,
			"betting_type": bettingType,
		}); err != nil {
			return err
		}

		if _, err := m.apply(model.EntryKindBetPayout, result.Payout, map[string]any{
			"ticket_id":    ticketID,
			"betting_type": bettingType,
			"outcome":      result.Outcome,
			"success":      result.Won(),
			"odds":         result.Odds,
			"success_rate": result.SuccessRate,
			"random_value": result.RandomValue,
			"seed":         seed,
		}); err != nil {
			return err
		}

		return s.bets.Create(ctx, m.tx, &model.BetTicket{
			TicketID:     ticketID,
			UserID:       userID,
			BettingType:  bettingType,
			Stake:        stake,
			SuccessRate:  result.SuccessRate,
			Odds:         result.Odds,
			RandomValue:  result.RandomValue,
			Seed:         seed,
			Outcome:      result.Outcome,
			Payout:       result.Payout,
			BalanceAfter: m.account.Balance,
			CreatedAt:    s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("下注完成",
		"user_id", userID,
		"ticket_id", ticketID,
		"betting_type", bettingType,
		"stake", stake,
		"outcome", result.Outcome,
		"payout", result.Payout,
		"balance", account.Balance,
	)

	return &BetResult{
		TicketID:    ticketID,
		BettingType: bettingType,
		Stake:       stake,
		Outcome:     result.Outcome,
		Payout:      result.Payout,
		Balance:     account.Balance,
		RandomValue: result.RandomValue,
		SuccessRate: result.SuccessRate,
		Odds:        result.Odds,
		Seed:        seed,
	}, nil
}

// Donate 捐赠积分，余额不足返回 ErrInsufficientPoints
func (s *PointsService) Donate(ctx context.Context, userID string, points int64, target string) (*BalanceResult, error) {
	if points <= 0 || points > MaxAmount {
		return nil, ErrInvalidAmount
	}

	var metadata map[string]any
	if target != "" {
		metadata = map[string]any{"target": target}
	}

	var entryNo string
	account, err := s.mutate(ctx, "donate", userID, func(m *mutation) error {
		entry, err := m.apply(model.EntryKindDonationDebit, -points, metadata)
		if err != nil {
			return err
		}
		entryNo = entry.EntryNo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{UserID: userID, Balance: account.Balance, EntryNo: entryNo}, nil
}

// ChargePoints 充值，不检查余额
func (s *PointsService) ChargePoints(ctx context.Context, userID string, amount int64, paymentMethod string) (*BalanceResult, error) {
	if amount <= 0 || amount > MaxAmount {
		return nil, ErrInvalidAmount
	}
	if _, ok := s.paymentMethods[paymentMethod]; !ok {
		return nil, ErrInvalidPaymentMethod
	}

	var entryNo string
	account, err := s.mutate(ctx, "charge", userID, func(m *mutation) error {
		entry, err := m.apply(model.EntryKindChargeCredit, amount, map[string]any{"payment_method": paymentMethod})
		if err != nil {
			return err
		}
		entryNo = entry.EntryNo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{UserID: userID, Balance: account.Balance, EntryNo: entryNo}, nil
}

// ============================================================================
// 查询
// ============================================================================

func (s *PointsService) GetBalance(ctx context.Context, userID string) (*BalanceResult, error) {
	account, err := s.accounts.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, translateError(err)
	}
	return &BalanceResult{UserID: userID, Balance: account.Balance}, nil
}

// GetLedger 最新的流水在前
func (s *PointsService) GetLedger(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	if _, err := s.accounts.GetByUserID(ctx, nil, userID); err != nil {
		return nil, translateError(err)
	}
	entries, err := s.ledger.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, translateError(err)
	}
	return entries, nil
}

func (s *PointsService) BetHistory(ctx context.Context, userID string, limit int) ([]*model.BetTicket, error) {
	tickets, err := s.bets.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, translateError(err)
	}
	return tickets, nil
}

// AttendanceMonth 某月已签到的日
func (s *PointsService) AttendanceMonth(ctx context.Context, userID string, year int, month time.Month) ([]int, error) {
	days, err := s.attendance.MonthDays(ctx, userID, year, month)
	if err != nil {
		return nil, translateError(err)
	}
	return days, nil
}

// Today 签到时区下的当前时间
func (s *PointsService) Today() time.Time {
	return s.attendance.Now()
}

// Odds 当前赔率表
func (s *PointsService) Odds() map[string]game.Odds {
	return s.evaluator.Table().Snapshot()
}

// Audit 在同一个事务内读取余额和全部流水并回放
func (s *PointsService) Audit(ctx context.Context, userID string) (*AuditReport, error) {
	report := &AuditReport{UserID: userID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		entries, err := s.ledger.ListAllByUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		report.Balance = account.Balance
		report.Entries = len(entries)
		for _, e := range entries {
			report.Replayed += e.Delta
			if report.BrokenEntryNo == "" && e.BalanceAfter != report.Replayed {
				report.BrokenEntryNo = e.EntryNo
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}

	report.Consistent = report.BrokenEntryNo == "" && report.Replayed == report.Balance
	if !report.Consistent {
		slog.Warn("流水回放与余额不一致",
			"user_id", userID,
			"balance", report.Balance,
			"replayed", report.Replayed,
			"broken_entry_no", report.BrokenEntryNo,
		)
	}
	return report, nil
}

// ============================================================================
// 乐观锁重试
// ============================================================================

// mutation 一次尝试内的事务上下文，apply 可以调用多次（下注时先扣后派）
type mutation struct {
	ctx     context.Context
	s       *PointsService
	tx      *gorm.DB
	account *model.Account
	entries []*model.LedgerEntry
}

// apply 基于本次尝试读到的余额和版本号做 CAS，成功后写流水和 outbox
func (m *mutation) apply(kind string, delta int64, metadata map[string]any) (*model.LedgerEntry, error) {
	if delta > 0 && m.account.Balance > math.MaxInt64-delta {
		return nil, ErrInvalidAmount
	}
	newBalance := m.account.Balance + delta
	if newBalance < 0 {
		return nil, ErrInsufficientPoints
	}

	if err := m.s.accounts.CompareAndSet(m.ctx, m.tx, m.account.UserID, m.account.Balance, m.account.Version, newBalance); err != nil {
		return nil, err
	}
	m.account.Balance = newBalance
	m.account.Version++

	entry := &model.LedgerEntry{
		UserID:       m.account.UserID,
		Kind:         kind,
		Delta:        delta,
		BalanceAfter: newBalance,
		Metadata:     datatypes.JSONMap(metadata),
		CreatedAt:    m.s.now(),
	}
	if err := m.s.appendEntry(m.ctx, m.tx, entry); err != nil {
		return nil, err
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

// appendEntry 写流水，并在同一事务内写一条待投递的 outbox 消息
func (s *PointsService) appendEntry(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	_, created, err := s.ledger.Append(ctx, tx, entry)
	if err != nil {
		return fmt.Errorf("写入流水失败: %w", err)
	}
	if !created {
		// 余额已经变动却没有新流水，必须让整个事务回滚
		return fmt.Errorf("写入流水失败: %w: %s", repository.ErrDuplicateEntry, entry.EntryNo)
	}

	msg, err := model.NewLedgerOutboxMessage(s.cfg.Kafka.Topic.Ledger, entry)
	if err != nil {
		return fmt.Errorf("构建 outbox 消息失败: %w", err)
	}
	if err := s.outbox.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}
	return nil
}

// mutate 执行一次积分变动，CAS 冲突时重试整个事务
func (s *PointsService) mutate(ctx context.Context, op, userID string, fn func(m *mutation) error) (*model.Account, error) {
	if s.redisClient != nil && s.cfg.Redis.UserLock {
		unlock, err := s.lockUser(ctx, userID)
		if err != nil {
			metrics.MutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
			return nil, err
		}
		defer unlock()
	}

	maxAttempts := s.cfg.Ledger.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var m *mutation
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			account, err := s.accounts.GetByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			m = &mutation{ctx: ctx, s: s, tx: tx, account: account}
			return fn(m)
		})

		if err == nil {
			metrics.MutationsTotal.WithLabelValues(op, "ok").Inc()
			metrics.MutationAttempts.WithLabelValues(op).Observe(float64(attempt))
			for _, e := range m.entries {
				metrics.PointsMoved.WithLabelValues(e.Kind).Add(float64(abs(e.Delta)))
			}
			return m.account, nil
		}

		if !errors.Is(err, repository.ErrBalanceConflict) {
			err = translateError(err)
			metrics.MutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
			return nil, err
		}

		metrics.CASConflictsTotal.WithLabelValues(op).Inc()
		slog.Debug("余额并发冲突，重试", "op", op, "user_id", userID, "attempt", attempt)

		if attempt < maxAttempts {
			if err := s.backoff(ctx, attempt); err != nil {
				metrics.MutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
				return nil, err
			}
		}
	}

	slog.Warn("余额并发冲突重试耗尽", "op", op, "user_id", userID, "attempts", maxAttempts)
	metrics.MutationsTotal.WithLabelValues(op, resultLabel(ErrContention)).Inc()
	metrics.MutationAttempts.WithLabelValues(op).Observe(float64(maxAttempts))
	return nil, ErrContention
}

// backoff 线性退避加随机抖动，避免冲突的请求同时重试
func (s *PointsService) backoff(ctx context.Context, attempt int) error {
	base := s.cfg.Ledger.RetryBackoff
	if base <= 0 {
		return nil
	}
	wait := base*time.Duration(attempt) + rand.N(base)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// lockUser 获取用户维度的 Redis 锁
// Redis 不可用时降级为只依赖乐观锁，锁长时间被占用时返回 ErrContention
func (s *PointsService) lockUser(ctx context.Context, userID string) (func(), error) {
	l := lock.NewPointsLock(s.redisClient, userID, uuid.NewString())
	err := l.Lock(ctx, 20*time.Millisecond, 50)
	switch {
	case err == nil:
		return func() {
			if err := l.Unlock(context.Background()); err != nil {
				slog.Warn("释放用户锁失败", "user_id", userID, "error", err)
			}
		}, nil
	case errors.Is(err, lock.ErrLockFailed):
		return nil, ErrContention
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		slog.Warn("获取用户锁失败，仅使用乐观锁", "user_id", userID, "error", err)
		return func() {}, nil
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, ErrContention):
		return "contention"
	default:
		return "error"
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
