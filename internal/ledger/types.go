// Package ledger holds the chain, the pending transaction pool, the
// derived wallet view, and the validation pipeline that binds them
// together under a single lock.
package ledger

import "github.com/samchamper/ballotchain/internal/chainhash"

// IssuerAddress is the sentinel sender identifying a newly issued credential
// rather than a transfer of an existing one.
const IssuerAddress = "0"

// GenesisPreviousHash is the sentinel previous_hash carried by the genesis
// block; deliberately not a valid hex digest so the genesis block can never
// be mistaken for one chained onto a real predecessor.
const GenesisPreviousHash = "1"

// GenesisProof is the fixed proof recorded on the genesis block.
const GenesisProof int64 = 100

// Transaction fields are declared in alphabetical order so the default
// struct JSON encoding is already the canonical, sorted-key wire form used
// for hashing and network transport.
type Transaction struct {
	Amount     int64   `json:"amount"`
	Recipient  string  `json:"recipient"`
	Sender     string  `json:"sender"`
	Signature  string  `json:"signature"`
	Timestamp  float64 `json:"timestamp"`
	VoteNumber int64   `json:"vote_number"`
}

// CanonicalJSON implements chainhash.Canonical.
func (t Transaction) CanonicalJSON() ([]byte, error) {
	return chainhash.MarshalCanonical(t)
}

// identity is the triple that makes a transaction non-redundant (§3
// invariant 3): two transactions sharing it are the same transaction.
func (t Transaction) identity() transactionIdentity {
	return transactionIdentity{sender: t.Sender, recipient: t.Recipient, timestamp: t.Timestamp}
}

type transactionIdentity struct {
	sender    string
	recipient string
	timestamp float64
}

// Block fields are declared in alphabetical order for the same canonical-
// encoding reason as Transaction.
type Block struct {
	Index        int64         `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Proof        int64         `json:"proof"`
	Timestamp    float64       `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// CanonicalJSON implements chainhash.Canonical.
func (b Block) CanonicalJSON() ([]byte, error) {
	return chainhash.MarshalCanonical(b)
}

// ChainView is the externally visible shape of a ledger's chain, returned
// by the chain-download endpoints.
type ChainView struct {
	Chain  []Block `json:"chain"`
	Length int     `json:"length"`
}
