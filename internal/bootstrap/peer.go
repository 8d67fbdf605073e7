package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledger"
	"github.com/samchamper/ballotchain/internal/peerset"
	"github.com/samchamper/ballotchain/internal/reconcile"
)

// ErrBootstrapFailed is returned when no source chain could be adopted
// during Initialize; the caller (cmd/peernode) is expected to exit with a
// non-zero status.
var ErrBootstrapFailed = errors.New("bootstrap: no chain could be imported from source")

const (
	sourceFetchRetries  = 5
	sourceFetchInterval = 2 * time.Second
)

// Initialize runs the peer node's startup sequence: normalize and register
// the source, fetch its peer list with back-off, reciprocate with every
// peer it returns, then resolve onto the longest chain any of them
// (including the source itself) can offer. Freezing the ledger's total
// value is the caller's responsibility, done only after Initialize returns
// successfully, so the import itself is never checked against a total it
// hasn't locked in yet.
func Initialize(ctx context.Context, chain *ledger.Chain, peers *peerset.Set, client *http.Client, source string, selfPort int, log *logrus.Entry) error {
	sourceHostPort, err := peerset.ParseHostPort(source)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := peerset.Register(peers, sourceHostPort); err != nil {
		return fmt.Errorf("bootstrap: register source: %w", err)
	}

	isIssuanceSource, err := fetchSourceNodes(ctx, client, peers, selfPort, sourceHostPort, log)
	if err != nil {
		return err
	}

	if !reconcile.ResolveConflicts(ctx, chain, peers, client, log) {
		return ErrBootstrapFailed
	}

	if isIssuanceSource {
		peerset.Remove(peers, sourceHostPort)
		log.WithField("source", sourceHostPort).Info("issuance source served its one chain, removed from peer set")
	}
	return nil
}

// fetchSourceNodes GETs source/nodes/ with up to 5 retries at a 2-second
// interval; this is the only place in this codebase that backs off this
// way, since it runs once at startup against a source that may not be up
// yet, unlike package reconcile's immediate, no-back-off retry loop used
// during steady-state operation. A 204 response identifies source as an
// issuance node: used only for the initial chain import, never meshed
// with. A 200 response carries a peer list that this node reciprocates
// with and registers.
func fetchSourceNodes(ctx context.Context, client *http.Client, peers *peerset.Set, selfPort int, sourceHostPort string, log *logrus.Entry) (isIssuanceSource bool, err error) {
	url := "http://" + sourceHostPort + "/nodes/"
	var resp *http.Response
	for attempt := 0; attempt < sourceFetchRetries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return false, fmt.Errorf("bootstrap: build request: %w", reqErr)
		}
		resp, err = client.Do(req)
		if err == nil {
			break
		}
		log.WithFields(logrus.Fields{"source": sourceHostPort, "attempt": attempt + 1, "error": err}).Warn("connection to source failed, retrying")
		if attempt+1 < sourceFetchRetries {
			time.Sleep(sourceFetchInterval)
		}
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return true, nil
	}

	var body struct {
		Nodes []string `json:"nodes"`
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
		return false, fmt.Errorf("bootstrap: decode source node list: %w", decodeErr)
	}
	for _, peer := range body.Nodes {
		reconcile.Reciprocate(ctx, client, peer, selfPort, log)
		if regErr := peerset.Register(peers, peer); regErr != nil {
			log.WithFields(logrus.Fields{"peer": peer, "error": regErr}).Warn("skipping malformed peer from source node list")
		}
	}
	return false, nil
}

// GracefulExit asks one peer to resolve (so this node's chain, if it is the
// longest, survives the exit), then notifies every peer to remove this
// node. Best-effort throughout: a shutting-down node has nothing useful to
// do with a failed request, so errors are swallowed rather than retried.
func GracefulExit(ctx context.Context, peers *peerset.Set, client *http.Client, selfPort int, log *logrus.Entry) {
	log.Info("shutting down node")
	for _, peer := range peerset.List(peers) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+peer+"/resolve/", nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		break
	}

	for _, peer := range peerset.List(peers) {
		req, err := buildRemoveRequest(ctx, peer, selfPort)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
	}
	log.Info("graceful exit complete")
}

func buildRemoveRequest(ctx context.Context, peer string, selfPort int) (*http.Request, error) {
	body, err := json.Marshal(map[string]int{"port": selfPort})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+peer+"/remove/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
