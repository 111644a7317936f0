// Package game 积分下注小游戏的开奖逻辑
package game

import (
	"errors"
	"sort"

	"fanpoints/internal/config"
)

var ErrUnknownBettingType = errors.New("unknown betting type")

// Odds 某个下注类型的固定胜率和赔率
type Odds struct {
	SuccessRate float64 `json:"success_rate"`
	Odds        float64 `json:"odds"`
}

// OddsTable 赔率表，启动时加载一次，之后只读，可并发访问
type OddsTable struct {
	odds map[string]Odds
}

func NewOddsTable(odds map[string]Odds) *OddsTable {
	copied := make(map[string]Odds, len(odds))
	for k, v := range odds {
		copied[k] = v
	}
	return &OddsTable{odds: copied}
}

// OddsTableFromConfig 从配置构建赔率表
func OddsTableFromConfig(cfg config.GameConfig) *OddsTable {
	odds := make(map[string]Odds, len(cfg.Odds))
	for name, o := range cfg.Odds {
		odds[name] = Odds{SuccessRate: o.SuccessRate, Odds: o.Odds}
	}
	return NewOddsTable(odds)
}

func (t *OddsTable) Lookup(bettingType string) (Odds, error) {
	o, ok := t.odds[bettingType]
	if !ok {
		return Odds{}, ErrUnknownBettingType
	}
	return o, nil
}

// Types 按名称排序返回所有下注类型
func (t *OddsTable) Types() []string {
	types := make([]string, 0, len(t.odds))
	for k := range t.odds {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Snapshot 返回赔率表副本，用于展示
func (t *OddsTable) Snapshot() map[string]Odds {
	out := make(map[string]Odds, len(t.odds))
	for k, v := range t.odds {
		out[k] = v
	}
	return out
}
