package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/tsm"
	"github.com/caio-sobreiro/bacnetstack/types"
)

func noopSend(peer address.Address, apdu []byte) (int, error) { return len(apdu), nil }

func TestDevicesJSON(t *testing.T) {
	tbl := address.NewTable(30)
	tbl.Add(260001, 1476, types.SegmentationNone, 0, address.NewLocalMAC([]byte{10, 0, 0, 5, 0xBA, 0xC0}), -1)

	router := NewRouter(prometheus.NewRegistry(), tbl, tsm.NewManager(tsm.DefaultConfig(), noopSend))
	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rows []deviceRow
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].DeviceID != 260001 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestDevicesCSV(t *testing.T) {
	tbl := address.NewTable(30)
	tbl.Add(5, 480, types.SegmentationNone, 0, address.NewLocalMAC([]byte{192, 168, 1, 2, 0xBA, 0xC0}), -1)

	router := NewRouter(prometheus.NewRegistry(), tbl, tsm.NewManager(tsm.DefaultConfig(), noopSend))
	req := httptest.NewRequest(http.MethodGet, "/devices.csv", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "192.168.1.2.186.192") {
		t.Fatalf("expected formatted address in csv, got %q", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "diag_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	router := NewRouter(reg, address.NewTable(30), tsm.NewManager(tsm.DefaultConfig(), noopSend))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "diag_test_total") {
		t.Fatal("expected metric name in exposition output")
	}
}

func TestTransactionsJSON(t *testing.T) {
	mgr := tsm.NewManager(tsm.DefaultConfig(), noopSend)
	peer := address.NewLocalMAC([]byte{10, 0, 0, 9, 0xBA, 0xC0})
	mgr.SetConfirmedTransaction(7, peer, []byte{0xAA})

	router := NewRouter(prometheus.NewRegistry(), address.NewTable(30), mgr)
	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rows []transactionRow
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].InvokeID != 7 || rows[0].State != "await-confirmation" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
