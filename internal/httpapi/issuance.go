package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledger"
)

// NewIssuanceRouter exposes the two-endpoint surface of the issuance node:
// a chain download that schedules shutdown once served, and a 204 sentinel
// on /nodes/ telling peers not to mesh with it.
func NewIssuanceRouter(chain *ledger.Chain, shutdown chan<- struct{}, log *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(log))

	addRoute(r, "/chain/", func(w http.ResponseWriter, req *http.Request) {
		blocks := chain.Snapshot()
		writeJSON(w, http.StatusOK, ledger.ChainView{Chain: blocks, Length: len(blocks)})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		go signalShutdown(shutdown, log)
	}, http.MethodGet)

	addRoute(r, "/nodes/", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, http.MethodGet)

	return r
}

// signalShutdown schedules the issuance node's own termination from inside
// the chain-download handler; the handler flushes its response before
// starting it in its own goroutine.
func signalShutdown(shutdown chan<- struct{}, log *logrus.Entry) {
	log.Info("chain served, scheduling shutdown")
	select {
	case shutdown <- struct{}{}:
	default:
	}
}
