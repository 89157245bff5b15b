package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hyperswap"

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "operations_total",
			Help:      "Ledger operations by name and result code",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger operations including external asset calls",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"op"},
	)

	openOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orderbook",
			Name:      "open_orders",
			Help:      "Orders neither filled nor cancelled",
		},
	)

	ordersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orderbook",
			Name:      "orders_total",
			Help:      "Orders ever created (the order count)",
		},
	)

	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "transactions_total",
			Help:      "Signed transactions applied by type and result code",
		},
		[]string{"type", "result"},
	)

	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		},
	)
)

// ObserveOperation records one ledger operation. result is "ok" or an error code.
func ObserveOperation(op, result string, started time.Time) {
	operationsTotal.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func SetOrders(total uint64, open int) {
	ordersTotal.Set(float64(total))
	openOrders.Set(float64(open))
}

func ObserveTransaction(txType, result string) {
	transactionsTotal.WithLabelValues(txType, result).Inc()
}

func WSClientConnected()    { wsClients.Inc() }
func WSClientDisconnected() { wsClients.Dec() }
