// Package reconcile implements longest-valid-chain resolution and the
// reciprocal-acknowledgement handshake that keeps the peer graph
// symmetric.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledger"
	"github.com/samchamper/ballotchain/internal/peerset"
)

const (
	// fetchRetries retries a peer's /chain immediately up to 5 times with
	// no back-off, unlike the bootstrap Initialize path in package
	// bootstrap, which does back off (there, the source may simply not be
	// up yet; here a peer is assumed already live).
	fetchRetries = 5
	httpTimeout  = 5 * time.Second
)

type chainResponse struct {
	Chain  []ledger.Block `json:"chain"`
	Length int            `json:"length"`
}

// NewHTTPClient returns the client used for peer I/O, with a bounded
// per-call timeout so a slow or dead peer can never stall resolution or
// broadcast indefinitely.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// ResolveConflicts snapshots the peer set, fetches each peer's chain (with
// retry/eviction on transient failure), and atomically adopts the
// strictly-longest valid, wallet-clean candidate. All peer I/O and
// candidate validation happens outside the ledger lock; only the final
// swap takes it. Returns whether a replacement occurred.
func ResolveConflicts(ctx context.Context, chain *ledger.Chain, peers *peerset.Set, client *http.Client, log *logrus.Entry) bool {
	neighbours := peerset.List(peers)
	bestLength := chain.Length()

	var bestCandidate []ledger.Block
	var bestWallets map[string]int64
	var bestTotal int64
	found := false

	for _, peer := range neighbours {
		resp, ok := fetchChainWithRetry(ctx, client, peer, log)
		if !ok {
			peerset.Remove(peers, peer)
			log.WithField("peer", peer).Warn("evicting unresponsive peer")
			continue
		}
		if resp.Length <= bestLength {
			continue
		}
		if !ledger.ValidChain(resp.Chain) {
			continue
		}
		wallets, total, ok := chain.DeriveWallets(resp.Chain)
		if !ok {
			continue
		}
		bestLength = resp.Length
		bestCandidate = resp.Chain
		bestWallets = wallets
		bestTotal = total
		found = true
	}

	if !found {
		return false
	}
	return chain.AdoptChain(bestCandidate, bestWallets, bestTotal)
}

func fetchChainWithRetry(ctx context.Context, client *http.Client, peer string, log *logrus.Entry) (chainResponse, bool) {
	url := fmt.Sprintf("http://%s/chain/", peer)
	for attempt := 0; attempt < fetchRetries; attempt++ {
		resp, err := getJSON(ctx, client, url)
		if err == nil {
			return resp, true
		}
		log.WithFields(logrus.Fields{"peer": peer, "attempt": attempt + 1, "error": err}).Debug("chain fetch failed, retrying")
	}
	return chainResponse{}, false
}

func getJSON(ctx context.Context, client *http.Client, url string) (chainResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return chainResponse{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return chainResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return chainResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out chainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chainResponse{}, err
	}
	return out, nil
}

// Reciprocate POSTs /recip to peer carrying this node's listening port, so
// that a peer which previously pruned this node re-adds it. Best-effort:
// failures are logged and swallowed, never propagated, so a single
// unreachable peer never blocks the caller's own progress.
func Reciprocate(ctx context.Context, client *http.Client, peer string, selfPort int, log *logrus.Entry) {
	body, err := json.Marshal(map[string]int{"port": selfPort})
	if err != nil {
		return
	}
	url := fmt.Sprintf("http://%s/recip", peer)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		log.WithFields(logrus.Fields{"peer": peer, "error": err}).Debug("reciprocation failed")
		return
	}
	resp.Body.Close()
}

// ReciprocateAll fans Reciprocate out over every currently registered peer.
func ReciprocateAll(ctx context.Context, client *http.Client, peers *peerset.Set, selfPort int, log *logrus.Entry) {
	for _, peer := range peerset.List(peers) {
		Reciprocate(ctx, client, peer, selfPort, log)
	}
}
