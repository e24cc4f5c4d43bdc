package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "notifications_total",
		Help:      "User facing notifications emitted by the wallet session.",
	}, []string{"kind"})

	transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transactions_total",
		Help:      "Contract write operations by method and outcome.",
	}, []string{"method", "status"})

	sessionConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "connected",
		Help:      "1 when a wallet account is connected.",
	})

	sessionWrongNetwork = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "wrong_network",
		Help:      "1 when the connected wallet is on a chain other than the required one.",
	})

	priceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "fetches_total",
		Help:      "Spot price refreshes by result.",
	}, []string{"result"})

	agentScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "scan_skipped_total",
		Help:      "Agent ids skipped during bulk scans because a read failed.",
	}, []string{"scan"})
)

// ObserveNotification counts a notification of the given kind.
func ObserveNotification(kind string) {
	notifications.WithLabelValues(kind).Inc()
}

// ObserveTransaction counts a write operation outcome.
func ObserveTransaction(method, status string) {
	transactions.WithLabelValues(method, status).Inc()
}

// SetSessionState mirrors the wallet session into gauges.
func SetSessionState(connected, wrongNetwork bool) {
	sessionConnected.Set(boolToFloat(connected))
	sessionWrongNetwork.Set(boolToFloat(wrongNetwork))
}

// ObservePriceFetch counts a price refresh.
func ObservePriceFetch(err error) {
	if err != nil {
		priceFetches.WithLabelValues("error").Inc()
		return
	}
	priceFetches.WithLabelValues("ok").Inc()
}

// ObserveScanSkip counts an id skipped by a bulk scan.
func ObserveScanSkip(scan string) {
	agentScans.WithLabelValues(scan).Inc()
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
