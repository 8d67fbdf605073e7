package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledger"
	"github.com/samchamper/ballotchain/internal/peerset"
	"github.com/samchamper/ballotchain/internal/powsolve"
	"github.com/samchamper/ballotchain/internal/reconcile"
	"github.com/samchamper/ballotchain/internal/votefile"
)

// voteAmount is the fixed amount every vote transaction carries; each vote
// spends one unit of the credential's balance, so a credential issued V
// votes can cast up to V separate votes.
const voteAmount = 1

const (
	broadcastAttempts  = 2
	broadcastRetryWait = time.Second
)

// PeerServer holds the dependencies shared by the peer node's HTTP
// handlers: the ledger itself, the peer registry, the outbound HTTP
// client used for reconciliation/broadcast, this node's own listening
// port (needed to identify itself to peers it reciprocates with), and
// the path to the candidate list consulted by /results/get_results/.
type PeerServer struct {
	chain          *ledger.Chain
	peers          *peerset.Set
	client         *http.Client
	selfPort       int
	candidatesPath string
	log            *logrus.Entry
}

// NewPeerServer builds a PeerServer. candidatesPath defaults to
// votefile.DefaultParamsFile when empty.
func NewPeerServer(chain *ledger.Chain, peers *peerset.Set, client *http.Client, selfPort int, candidatesPath string, log *logrus.Entry) *PeerServer {
	if candidatesPath == "" {
		candidatesPath = votefile.DefaultParamsFile
	}
	if client == nil {
		client = reconcile.NewHTTPClient()
	}
	return &PeerServer{
		chain:          chain,
		peers:          peers,
		client:         client,
		selfPort:       selfPort,
		candidatesPath: candidatesPath,
		log:            log,
	}
}

// NewPeerRouter wires the peer node's full HTTP surface: chain and peer-set
// inspection, conflict resolution, vote submission and tallying, and the
// node-registration handshake.
func NewPeerRouter(p *PeerServer) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(p.log))

	addRoute(r, "/chain/", p.handleChain, http.MethodGet)
	addRoute(r, "/nodes/", p.handleNodes, http.MethodGet)
	addRoute(r, "/resolve/", p.handleResolve, http.MethodGet)
	addRoute(r, "/recip", p.handleRecip, http.MethodPost)
	addRoute(r, "/remove/", p.handleRemove, http.MethodPost)
	addRoute(r, "/vote/", p.handleVote, http.MethodPost)
	addRoute(r, "/external_transaction/", p.handleExternalTransaction, http.MethodPost)
	addRoute(r, "/results/get_results/", p.handleResults, http.MethodGet)
	return r
}

func (p *PeerServer) handleChain(w http.ResponseWriter, r *http.Request) {
	blocks := p.chain.Snapshot()
	writeJSON(w, http.StatusOK, ledger.ChainView{Chain: blocks, Length: len(blocks)})
}

func (p *PeerServer) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nodesResponse{Nodes: peerset.List(p.peers)})
}

// handleResolve runs resolve_conflicts, then reciprocates with every peer
// still registered afterward so each of them registers this node in turn
// (re-adding it if it had been pruned).
func (p *PeerServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adopted := reconcile.ResolveConflicts(ctx, p.chain, p.peers, p.client, p.log)
	reconcile.ReciprocateAll(ctx, p.client, p.peers, p.selfPort, p.log)

	blocks := p.chain.Snapshot()
	if adopted {
		writeJSON(w, http.StatusOK, resolveResponse{Message: "our chain was replaced", NewChain: blocks})
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Message: "our chain is authoritative", Chain: blocks})
}

type resolveResponse struct {
	Message  string         `json:"message"`
	NewChain []ledger.Block `json:"new_chain,omitempty"`
	Chain    []ledger.Block `json:"chain,omitempty"`
}

// handleRecip registers the caller as remote_ip:port; this is the
// acknowledgement half of the node-registration handshake, called by a node
// that has registered us and asks to be registered in return.
func (p *PeerServer) handleRecip(w http.ResponseWriter, r *http.Request) {
	port, ok := decodePort(w, r)
	if !ok {
		return
	}
	address := remoteAddressWithPort(r, port)
	if err := peerset.Register(p.peers, address); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "New node added", Nodes: peerset.List(p.peers)})
}

func (p *PeerServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	port, ok := decodePort(w, r)
	if !ok {
		return
	}
	address := remoteAddressWithPort(r, port)
	peerset.Remove(p.peers, address)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Node removed", Nodes: peerset.List(p.peers)})
}

func decodePort(w http.ResponseWriter, r *http.Request) (int, bool) {
	var body portRequest
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return 0, false
	}
	return body.Port, true
}

func remoteAddressWithPort(r *http.Request, port int) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host + ":" + strconv.Itoa(port)
}

// handleVote implements POST /vote/: resolve the credential's sender,
// stage and mine the vote atomically, then fan the accepted transaction
// out to every peer.
func (p *PeerServer) handleVote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: "fail"})
		return
	}
	voteNumber, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: "fail"})
		return
	}
	signature := r.FormValue("key")
	candidate := r.FormValue("candidate")

	sender, ok := p.chain.GetTransactor(voteNumber)
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{Status: "fail"})
		return
	}

	candidateTx := ledger.Transaction{
		Sender:     sender,
		Recipient:  candidate,
		Amount:     voteAmount,
		Signature:  signature,
		VoteNumber: voteNumber,
	}
	if !p.chain.ValidTransaction(candidateTx, p.chain.Snapshot()) || !p.chain.ValidBalance(candidateTx) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "fail"})
		return
	}

	last := p.chain.LastBlock()
	lastHash, err := ledger.Hash(last)
	if err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: "fail"})
		return
	}
	proof := powsolve.FindProof(last.Proof, lastHash)

	vote, _, included, err := p.chain.SubmitVoteAndMine(sender, candidate, voteAmount, signature, voteNumber, proof, lastHash)
	if err != nil || !included {
		writeJSON(w, http.StatusOK, statusResponse{Status: "fail"})
		return
	}

	go p.broadcastTransaction(context.Background(), vote)
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// handleExternalTransaction stages a transaction received from a peer's
// broadcast without validating it synchronously; it is checked the next
// time this node forms a block.
func (p *PeerServer) handleExternalTransaction(w http.ResponseWriter, r *http.Request) {
	var body ledger.Transaction
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "malformed transaction", http.StatusBadRequest)
		return
	}
	vote := p.chain.NewTransaction(body.Sender, body.Recipient, body.Amount, body.Signature, body.VoteNumber)
	writeJSON(w, http.StatusOK, vote)
}

// broadcastTransaction fans a newly mined vote out to every registered
// peer, retrying each peer once after a one-second pause on failure before
// giving up on it.
func (p *PeerServer) broadcastTransaction(ctx context.Context, vote ledger.Transaction) {
	peers := peerset.List(p.peers)
	if len(peers) == 0 {
		return
	}
	p.log.WithField("peers", len(peers)).Debug("broadcasting transaction to connected nodes")
	for _, peer := range peers {
		for attempt := 0; attempt < broadcastAttempts; attempt++ {
			if postTransaction(ctx, p.client, peer, vote) {
				break
			}
			if attempt+1 < broadcastAttempts {
				time.Sleep(broadcastRetryWait)
			}
		}
	}
}

// postTransaction POSTs a single vote transaction to peer's
// /external_transaction/ endpoint, reporting whether it was accepted by
// the transport (a 2xx response), not whether the peer later validates it.
func postTransaction(ctx context.Context, client *http.Client, peer string, vote ledger.Transaction) bool {
	body, err := json.Marshal(vote)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+peer+"/external_transaction/", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// handleResults implements GET /results/get_results/: resolve first, mine
// any still-pending transactions (votes staged from peers' broadcasts) so
// they are reflected, then report each candidate's balance, zero-filling
// candidates nobody has voted for yet.
func (p *PeerServer) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reconcile.ResolveConflicts(ctx, p.chain, p.peers, p.client, p.log)
	reconcile.ReciprocateAll(ctx, p.client, p.peers, p.selfPort, p.log)

	if p.chain.HasPending() {
		last := p.chain.LastBlock()
		lastHash, err := ledger.Hash(last)
		if err == nil {
			proof := powsolve.FindProof(last.Proof, lastHash)
			if _, err := p.chain.NewBlock(proof, lastHash); err != nil {
				p.log.WithField("error", err).Warn("failed to mine pending results block")
			}
		}
	}
	// The proof/previousHash computed above are a snapshot; if a concurrent
	// /vote/ or /resolve/ grows the chain before NewBlock acquires its lock,
	// formBlockLocked notices the tip moved and recomputes both itself.

	candidates, err := votefile.ReadCandidates(p.candidatesPath)
	if err != nil {
		http.Error(w, "candidate list unavailable", http.StatusInternalServerError)
		return
	}
	results := make(map[string]int64, len(candidates))
	for _, candidate := range candidates {
		results[candidate] = p.chain.BalanceCheck(candidate)
	}
	writeJSON(w, http.StatusOK, results)
}
