package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledger"
)

func TestIssuanceChainDownloadSchedulesShutdown(t *testing.T) {
	chain := ledger.New(logrus.New())
	shutdown := make(chan struct{}, 1)
	router := NewIssuanceRouter(chain, shutdown, testLogger())
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/chain/")
	if err != nil {
		t.Fatalf("GET /chain/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatalf("expected shutdown signal after chain download")
	}
}

func TestIssuanceNodesEndpointSignalsNoPeering(t *testing.T) {
	chain := ledger.New(logrus.New())
	router := NewIssuanceRouter(chain, make(chan struct{}, 1), testLogger())
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nodes/")
	if err != nil {
		t.Fatalf("GET /nodes/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}
