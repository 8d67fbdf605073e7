package ledger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/chainhash"
	"github.com/samchamper/ballotchain/internal/ledgercrypto"
	"github.com/samchamper/ballotchain/internal/powsolve"
)

// Chain is the ledger: the append-only block list, the pending transaction
// pool staged for the next block, and the wallet view derived by folding
// the chain. All mutating operations and every read that must observe a
// consistent snapshot go through mu.
type Chain struct {
	mu sync.RWMutex

	blocks  []Block
	pending []Transaction

	wallets    map[string]int64
	totalValue int64
	locked     bool

	log *logrus.Entry
}

// New creates a ledger containing only the genesis block.
func New(log *logrus.Logger) *Chain {
	if log == nil {
		log = logrus.New()
	}
	genesis := Block{
		Index:        0,
		PreviousHash: GenesisPreviousHash,
		Proof:        GenesisProof,
		Timestamp:    nowSeconds(),
		Transactions: []Transaction{},
	}
	return &Chain{
		blocks:  []Block{genesis},
		pending: []Transaction{},
		wallets: make(map[string]int64),
		log:     log.WithField("component", "ledger"),
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Hash returns the canonical digest of b.
func Hash(b Block) (string, error) {
	return chainhash.Of(b)
}

// LastBlock returns the most recently appended block.
func (c *Chain) LastBlock() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Length returns the number of blocks in the chain.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Snapshot returns a copy of the chain's blocks, suitable for serving over
// the wire or validating outside the lock.
func (c *Chain) Snapshot() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// IsLocked reports whether total value is frozen on this node.
func (c *Chain) IsLocked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked
}

// Lock freezes total value. One-way: calling it again is a no-op.
func (c *Chain) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return
	}
	c.locked = true
	c.log.WithField("total_value", c.totalValue).Info("ledger locked")
}

// TotalValue returns the sum of amounts credited by issuance transactions.
func (c *Chain) TotalValue() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalValue
}

// BalanceCheck returns the wallet balance held by name, or 0 if unknown.
func (c *Chain) BalanceCheck(name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wallets[name]
}

// GetTransactor resolves the sender implied by spending the credential
// issued at voteNumber: the sole recipient of that block's one transaction.
// Returns ok = false if voteNumber doesn't name such a block.
func (c *Chain) GetTransactor(voteNumber int64) (sender string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return transactorOf(voteNumber, c.blocks)
}

func transactorOf(voteNumber int64, chain []Block) (string, bool) {
	if voteNumber < 0 || int(voteNumber) >= len(chain) {
		return "", false
	}
	txs := chain[voteNumber].Transactions
	if len(txs) != 1 {
		return "", false
	}
	return txs[0].Recipient, true
}

// NewTransaction stages a transaction for the next block and returns it.
// It is not validated synchronously; validation happens at block formation
// and at chain import.
func (c *Chain) NewTransaction(sender, recipient string, amount int64, signature string, voteNumber int64) Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Transaction{
		Sender:     sender,
		Recipient:  recipient,
		Timestamp:  nowSeconds(),
		Amount:     amount,
		Signature:  signature,
		VoteNumber: voteNumber,
	}
	c.pending = append(c.pending, t)
	return t
}

// NewBlock forms the next block from the pending pool. proof and
// previousHash are ordinarily computed by the caller against a snapshot of
// the last block taken outside the lock, so the CPU-bound proof-of-work
// search never holds it; formBlockLocked re-hashes the current last block
// under the lock and, if the chain has grown past that snapshot in the
// meantime, recomputes both against the now-current tip rather than
// trusting the stale pair. Each pending transaction is then checked against
// ValidTransaction (over the current chain) and ValidBalance (over the
// current wallet view); accepted entries are appended to the block and
// applied to the wallet view immediately, so that two spends of the same
// credential within one batch serialize correctly. Rejected entries are
// dropped (logged at warn level) and never reach the chain. previousHash,
// if empty, is always taken from the last block.
func (c *Chain) NewBlock(proof int64, previousHash string) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formBlockLocked(proof, previousHash)
}

func (c *Chain) formBlockLocked(proof int64, previousHash string) (Block, error) {
	last := c.blocks[len(c.blocks)-1]
	lastHash, err := Hash(last)
	if err != nil {
		return Block{}, err
	}
	if previousHash == "" || previousHash != lastHash {
		proof = findProofLocked(last.Proof, lastHash)
		previousHash = lastHash
	}

	accepted := make([]Transaction, 0, len(c.pending))
	for _, t := range c.pending {
		if !validTransactionAgainst(t, c.blocks) {
			c.log.WithFields(logrus.Fields{"sender": t.Sender, "recipient": t.Recipient}).Warn("dropping invalid pending transaction")
			continue
		}
		if !c.validBalanceLocked(t) {
			c.log.WithFields(logrus.Fields{"sender": t.Sender, "amount": t.Amount}).Warn("dropping transaction with insufficient balance")
			continue
		}
		c.applyLocked(t)
		accepted = append(accepted, t)
	}

	block := Block{
		Index:        int64(len(c.blocks)),
		PreviousHash: previousHash,
		Proof:        proof,
		Timestamp:    nowSeconds(),
		Transactions: accepted,
	}
	c.pending = c.pending[:0]
	c.blocks = append(c.blocks, block)
	c.log.WithFields(logrus.Fields{"index": block.Index, "transactions": len(accepted)}).Info("new block formed")
	return block, nil
}

// SubmitVoteAndMine stages a vote transaction and forms the next block in
// one atomic critical section: staging and block formation happen under a
// single lock acquisition, so a concurrent resolve can never adopt a longer
// chain in between (formBlockLocked re-derives proof and previousHash from
// the current tip if that happens, rather than trusting the caller's
// outside-the-lock snapshot).
func (c *Chain) SubmitVoteAndMine(sender, recipient string, amount int64, signature string, voteNumber int64, proof int64, previousHash string) (vote Transaction, block Block, included bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vote = Transaction{
		Sender:     sender,
		Recipient:  recipient,
		Timestamp:  nowSeconds(),
		Amount:     amount,
		Signature:  signature,
		VoteNumber: voteNumber,
	}
	c.pending = append(c.pending, vote)

	block, err = c.formBlockLocked(proof, previousHash)
	if err != nil {
		return vote, Block{}, false, err
	}
	for _, t := range block.Transactions {
		if t.identity() == vote.identity() {
			included = true
			break
		}
	}
	return vote, block, included, nil
}

// findProofLocked recomputes proof-of-work against the current last block.
// Only taken when a concurrent chain adoption invalidated the caller's
// outside-the-lock proof; expected to be rare.
func findProofLocked(lastProof int64, lastHash string) int64 {
	return powsolve.FindProof(lastProof, lastHash)
}

func (c *Chain) applyLocked(t Transaction) {
	if t.Sender == IssuerAddress {
		c.totalValue += t.Amount
	} else {
		c.wallets[t.Sender] -= t.Amount
	}
	c.wallets[t.Recipient] += t.Amount
}

// ValidTransaction checks t against chain per §4.4: non-redundant, a
// non-negative amount, and either an issuance transaction or a correctly
// signed spend of the credential named by vote_number.
func (c *Chain) ValidTransaction(t Transaction, chain []Block) bool {
	return validTransactionAgainst(t, chain)
}

func validTransactionAgainst(t Transaction, chain []Block) bool {
	if !nonRedundant(t, chain) {
		return false
	}
	if t.Amount < 0 {
		return false
	}
	if t.Sender == IssuerAddress {
		return true
	}
	sender, ok := transactorOf(t.VoteNumber, chain)
	if !ok || sender != t.Sender {
		return false
	}
	return ledgercrypto.VerifyCredential(t.Signature, t.Sender)
}

func nonRedundant(t Transaction, chain []Block) bool {
	id := t.identity()
	seen := false
	for _, block := range chain {
		for _, other := range block.Transactions {
			if other.identity() == id {
				if seen {
					return false
				}
				seen = true
			}
		}
	}
	return true
}

// ValidBalance reports whether sender can afford t given the current
// wallet view. An issuance transaction (sender "0") is only permitted
// while the ledger is unlocked.
func (c *Chain) ValidBalance(t Transaction) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validBalanceLocked(t)
}

func (c *Chain) validBalanceLocked(t Transaction) bool {
	if t.Sender == IssuerAddress {
		return !c.locked
	}
	return c.wallets[t.Sender] >= t.Amount
}

// ValidChain verifies hash linkage, proof of work, and transaction
// validity (§3 invariants 1-5) over chain. Does not mutate local state.
func ValidChain(chain []Block) bool {
	if len(chain) == 0 {
		return false
	}
	last := chain[0]
	for i := 1; i < len(chain); i++ {
		block := chain[i]
		lastHash, err := Hash(last)
		if err != nil {
			return false
		}
		if block.PreviousHash != lastHash {
			return false
		}
		if !powsolve.ValidProof(last.Proof, block.Proof, lastHash) {
			return false
		}
		last = block
	}
	return chainTransactionsValid(chain)
}

func chainTransactionsValid(chain []Block) bool {
	for _, block := range chain {
		for _, t := range block.Transactions {
			if !validTransactionAgainst(t, chain) {
				return false
			}
		}
	}
	return true
}

// DeriveWallets folds chain into a fresh wallet view and total value. ok is
// false if any non-issuer address ends negative, or if the chain is locked
// and the derived total value differs from the value captured at lock time.
func (c *Chain) DeriveWallets(chain []Block) (wallets map[string]int64, totalValue int64, ok bool) {
	c.mu.RLock()
	locked := c.locked
	lockedValue := c.totalValue
	c.mu.RUnlock()

	wallets = make(map[string]int64)
	for _, block := range chain {
		for _, t := range block.Transactions {
			if t.Sender == IssuerAddress {
				totalValue += t.Amount
			} else {
				wallets[t.Sender] -= t.Amount
			}
			wallets[t.Recipient] += t.Amount
		}
	}
	for owner, balance := range wallets {
		if owner != IssuerAddress && balance < 0 {
			return nil, 0, false
		}
	}
	if locked && totalValue != lockedValue {
		return nil, 0, false
	}
	return wallets, totalValue, true
}

// AdoptChain atomically replaces the local chain, wallets, and total value.
// Callers must have already validated chain and derived wallets/total on a
// snapshot; AdoptChain re-checks that the candidate is still strictly
// longer than the current chain before swapping, closing the race where a
// concurrent NewBlock grew the local chain in the meantime.
func (c *Chain) AdoptChain(chain []Block, wallets map[string]int64, totalValue int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(chain) <= len(c.blocks) {
		return false
	}
	c.blocks = chain
	c.wallets = wallets
	c.totalValue = totalValue
	c.pending = c.pending[:0]
	c.log.WithField("length", len(chain)).Info("adopted longer chain")
	return true
}

// Pending returns a copy of the currently staged transactions.
func (c *Chain) Pending() []Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Transaction, len(c.pending))
	copy(out, c.pending)
	return out
}

// HasPending reports whether any transactions are staged for the next
// block.
func (c *Chain) HasPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending) > 0
}
