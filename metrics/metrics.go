// Package metrics wires the counters and gauges an operator needs to
// see into a running node: retransmissions, transaction failures,
// invoke-ID exhaustion, address-cache churn, Who-Is traffic, and
// segment-level negative acks. It generalizes an ad hoc counters struct
// (plain ConnectAttempts/ConnectFailures fields) into real
// github.com/prometheus/client_golang collectors so they can be scraped.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the full set of collectors a Node registers against a
// prometheus.Registerer.
type Metrics struct {
	Retransmissions prometheus.Counter
	TransactionTimeouts prometheus.Counter
	InvokeIDExhaustion prometheus.Counter
	AddressCacheInserts prometheus.Counter
	AddressCacheEvictions prometheus.Counter
	WhoIsEmitted prometheus.Counter
	SegmentRetransmissions prometheus.Counter
	SegmentNegativeAcks prometheus.Counter
	RejectsByReason *prometheus.CounterVec
	AbortsByReason *prometheus.CounterVec
	ErrorsByClass *prometheus.CounterVec
	AddressCacheSize prometheus.Gauge
	OutstandingTransactions prometheus.Gauge
}

// NewMetrics builds and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry (e.g. in tests) or
// prometheus.DefaultRegisterer to expose via promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_retransmissions_total", Help: "Confirmed-request retransmissions due to APDU timeout.",
		}),
		TransactionTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_transaction_timeouts_total", Help: "Transactions that exhausted all retries and failed.",
		}),
		InvokeIDExhaustion: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_invoke_id_exhaustion_total", Help: "Attempts to allocate an invoke ID when the slot table was full.",
		}),
		AddressCacheInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_address_cache_inserts_total", Help: "Address binding table insertions (including replacements).",
		}),
		AddressCacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_address_cache_evictions_total", Help: "Address binding table evictions, by TTL expiry or overflow.",
		}),
		WhoIsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_who_is_emitted_total", Help: "Who-Is requests emitted, by bind_request throttling or an explicit broadcast.",
		}),
		SegmentRetransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_segment_retransmissions_total", Help: "Outgoing segment windows rewound by a negative Segment-Ack.",
		}),
		SegmentNegativeAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacnet_segment_negative_acks_total", Help: "Negative Segment-Acks sent for a detected reassembly gap.",
		}),
		RejectsByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_rejects_total", Help: "Reject PDUs sent or received, by reason.",
		}, []string{"reason", "direction"}),
		AbortsByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_aborts_total", Help: "Abort PDUs sent or received, by reason.",
		}, []string{"reason", "direction"}),
		ErrorsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_errors_total", Help: "Error PDUs sent or received, by error class.",
		}, []string{"class", "direction"}),
		AddressCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bacnet_address_cache_size", Help: "Current occupied entries in the address binding table.",
		}),
		OutstandingTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bacnet_outstanding_transactions", Help: "Current non-idle TSM slots.",
		}),
	}

	reg.MustRegister(
		m.Retransmissions, m.TransactionTimeouts, m.InvokeIDExhaustion,
		m.AddressCacheInserts, m.AddressCacheEvictions, m.WhoIsEmitted,
		m.SegmentRetransmissions, m.SegmentNegativeAcks,
		m.RejectsByReason, m.AbortsByReason, m.ErrorsByClass,
		m.AddressCacheSize, m.OutstandingTransactions,
	)
	return m
}
