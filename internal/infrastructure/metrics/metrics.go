// Package metrics 积分服务的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fanpoints"

var (
	// MutationsTotal 按操作和结果统计积分变动次数
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Balance mutations by operation and result.",
	}, []string{"operation", "result"})

	// CASConflictsTotal 乐观锁冲突次数
	CASConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cas_conflicts_total",
		Help:      "Compare-and-set conflicts that triggered a retry.",
	}, []string{"operation"})

	// MutationAttempts 每次积分变动实际尝试的次数
	MutationAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mutation_attempts",
		Help:      "Attempts needed per mutation.",
		Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
	}, []string{"operation"})

	PointsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_moved_total",
		Help:      "Absolute points moved by ledger entry kind.",
	}, []string{"kind"})

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox publish attempts by result.",
	}, []string{"result"})

	ReconcileMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_mismatch_total",
		Help:      "Accounts whose balance differs from their latest ledger entry.",
	})
)
