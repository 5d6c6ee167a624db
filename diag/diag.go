// Package diag exposes the device binding table and transaction table
// over HTTP, for operators and external tooling, grounded on
// marmos91-dittofs's pkg/api/router.go chi.NewRouter shape (request-ID
// middleware, Recoverer, grouped routes) generalized from a multi-tenant
// filesystem control plane down to four read-only diagnostic routes.
package diag

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gocarina/gocsv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/tsm"
)

// deviceRow is the CSV/JSON projection of one address.IndexedBinding.
type deviceRow struct {
	DeviceID uint32 `json:"device_id" csv:"device_id"`
	MaxAPDU uint16 `json:"max_apdu" csv:"max_apdu"`
	Address string `json:"address" csv:"address"`
}

// transactionRow is the JSON projection of one tsm.TransactionSnapshot.
type transactionRow struct {
	InvokeID uint8 `json:"invoke_id"`
	State string `json:"state"`
	Peer string `json:"peer"`
	RetryCount uint8 `json:"retry_count"`
	TimerMilliseconds uint32 `json:"timer_ms"`
}

// NewRouter builds the diagnostic HTTP router's ambient observability
// surface:
// - GET /metrics Prometheus exposition format
// - GET /devices known device bindings as JSON
// - GET /devices.csv known device bindings as CSV
// - GET /transactions live TSM slots as JSON
func NewRouter(reg prometheus.Gatherer, addresses *address.Table, transactions *tsm.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/devices", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deviceRows(addresses))
	})

	r.Get("/devices.csv", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		csvBytes, err := gocsv.MarshalBytes(deviceRows(addresses))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(csvBytes)
	})

	r.Get("/transactions", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transactionRows(transactions))
	})

	return r
}

func deviceRows(addresses *address.Table) []deviceRow {
	snapshot := addresses.Snapshot()
	rows := make([]deviceRow, 0, len(snapshot))
	for _, b := range snapshot {
		rows = append(rows, deviceRow{DeviceID: b.DeviceID, MaxAPDU: b.MaxAPDU, Address: formatAddress(b.Address)})
	}
	return rows
}

func transactionRows(transactions *tsm.Manager) []transactionRow {
	snapshot := transactions.Snapshot()
	rows := make([]transactionRow, 0, len(snapshot))
	for _, s := range snapshot {
		rows = append(rows, transactionRow{
			InvokeID: s.InvokeID, State: s.State.String(), Peer: formatAddress(s.Peer),
			RetryCount: s.RetryCount, TimerMilliseconds: s.TimerMilliseconds,
		})
	}
	return rows
}

func formatAddress(a address.Address) string {
	if a.MacLen == 0 {
		return ""
	}
	parts := make([]string, a.MacLen)
	for i := uint8(0); i < a.MacLen; i++ {
		parts[i] = strconv.Itoa(int(a.Mac[i]))
	}
	return strings.Join(parts, ".")
}
