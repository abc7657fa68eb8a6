package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campuspay"

var ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "charge",
	Name:      "requests_total",
	Help:      "Charge attempts by outcome kind.",
}, []string{"result"})

var ChargedAmount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "charge",
	Name:      "amount_total",
	Help:      "Sum of successfully charged amounts.",
})

var RechargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recharge",
	Name:      "requests_total",
	Help:      "Recharge attempts by outcome kind.",
}, []string{"result"})

var SettlementOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "operations_total",
	Help:      "Settlement requests and payments by outcome kind.",
}, []string{"op", "result"})

var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operation_duration_seconds",
	Help:      "Wall time of ledger units of work.",
	Buckets:   prometheus.DefBuckets,
}, []string{"op"})

var EventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "deliveries_total",
	Help:      "Event deliveries by transport and result.",
}, []string{"driver", "result"})

var OutboxParked = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "outbox_parked_total",
	Help:      "Events parked in the outbox after a failed delivery.",
})

var DailyResetRows = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "daily_reset_rows_total",
	Help:      "Student rows whose daily_spent was reset by the scheduled job.",
})

var ReconcileDivergences = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "reconcile_divergences_total",
	Help:      "Students whose stored balance diverged from their history.",
})
