package game

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

const (
	OutcomeWin  = "WIN"
	OutcomeLose = "LOSE"
)

// ErrPayoutOverflow 派奖超出 int64 范围
var ErrPayoutOverflow = errors.New("payout overflows int64")

var maxPayout = decimal.NewFromInt(math.MaxInt64)

// Draw 一次随机抽取：[0,1) 均匀分布的值及其种子
type Draw struct {
	Seed  uint64
	Value float64
}

// Drawer 随机数来源，实现必须并发安全
type Drawer interface {
	Draw() Draw
}

// SeededDrawer 每次下注生成新种子，只凭种子即可复现开奖结果
type SeededDrawer struct{}

func (SeededDrawer) Draw() Draw {
	seed := rand.Uint64()
	return Draw{Seed: seed, Value: Replay(seed)}
}

// Replay 根据种子重新计算 SeededDrawer 抽出的值
func Replay(seed uint64) float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return r.Float64()
}

// Result 开奖结果，输时 Payout 为 0
type Result struct {
	Outcome     string
	Payout      int64
	RandomValue float64
	Seed        uint64
	SuccessRate float64
	Odds        float64
}

func (r Result) Won() bool { return r.Outcome == OutcomeWin }

// Evaluator 只负责开奖，不修改余额，派奖由调用方完成
type Evaluator struct {
	table  *OddsTable
	drawer Drawer
}

func NewEvaluator(table *OddsTable, drawer Drawer) *Evaluator {
	if drawer == nil {
		drawer = SeededDrawer{}
	}
	return &Evaluator{table: table, drawer: drawer}
}

func (e *Evaluator) Table() *OddsTable { return e.table }

// Evaluate 抽取一次随机数并结算：value < successRate 为赢，
// 派奖 = floor(stake * odds)
func (e *Evaluator) Evaluate(stake int64, bettingType string) (Result, error) {
	odds, err := e.table.Lookup(bettingType)
	if err != nil {
		return Result{}, err
	}
	return Settle(stake, odds, e.drawer.Draw())
}

// Settle 给定随机数后的确定性结算
func Settle(stake int64, odds Odds, draw Draw) (Result, error) {
	res := Result{
		Outcome:     OutcomeLose,
		RandomValue: draw.Value,
		Seed:        draw.Seed,
		SuccessRate: odds.SuccessRate,
		Odds:        odds.Odds,
	}
	if draw.Value < odds.SuccessRate {
		payout, err := Payout(stake, odds.Odds)
		if err != nil {
			return Result{}, err
		}
		res.Outcome = OutcomeWin
		res.Payout = payout
	}
	return res, nil
}

// Payout 用 decimal 计算 floor(stake * odds)，避免浮点误差（100 * 1.15 得 115 而不是 114）
func Payout(stake int64, odds float64) (int64, error) {
	product := decimal.NewFromInt(stake).
		Mul(decimal.NewFromFloat(odds)).
		Floor()
	if product.GreaterThan(maxPayout) {
		return 0, ErrPayoutOverflow
	}
	return product.IntPart(), nil
}
