package ledger

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledgercrypto"
	"github.com/samchamper/ballotchain/internal/powsolve"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func mineBlock(t *testing.T, c *Chain) Block {
	t.Helper()
	last := c.LastBlock()
	lastHash, err := Hash(last)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	proof := powsolve.FindProof(last.Proof, lastHash)
	block, err := c.NewBlock(proof, lastHash)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	return block
}

func TestGenesisBlock(t *testing.T) {
	c := New(testLogger())
	if c.Length() != 1 {
		t.Fatalf("expected genesis-only chain of length 1, got %d", c.Length())
	}
	g := c.LastBlock()
	if g.PreviousHash != GenesisPreviousHash || g.Proof != GenesisProof || len(g.Transactions) != 0 {
		t.Fatalf("unexpected genesis block: %+v", g)
	}
}

func TestIssuanceThenVoteHappyPath(t *testing.T) {
	c := New(testLogger())
	pub, priv, err := ledgercrypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	c.NewTransaction(IssuerAddress, pub, 1, "", 0)
	issuance := mineBlock(t, c)
	if len(issuance.Transactions) != 1 {
		t.Fatalf("expected exactly one issuance transaction, got %d", len(issuance.Transactions))
	}
	if c.TotalValue() != 1 {
		t.Fatalf("expected total value 1 after issuance, got %d", c.TotalValue())
	}

	voteNumber := issuance.Index
	sender, ok := c.GetTransactor(voteNumber)
	if !ok || sender != pub {
		t.Fatalf("expected transactor to resolve to issued public key")
	}
	vote := c.NewTransaction(sender, "Alice", 1, priv, voteNumber)
	if !c.ValidTransaction(vote, c.Snapshot()) {
		t.Fatalf("expected happy-path vote to validate")
	}
	if !c.ValidBalance(vote) {
		t.Fatalf("expected sender to have sufficient balance")
	}
	block := mineBlock(t, c)
	if len(block.Transactions) != 1 {
		t.Fatalf("expected vote to be included in new block, got %d transactions", len(block.Transactions))
	}
	if c.BalanceCheck("Alice") != 1 {
		t.Fatalf("expected Alice's balance to be 1, got %d", c.BalanceCheck("Alice"))
	}
	if c.BalanceCheck(pub) != 0 {
		t.Fatalf("expected voter's balance to be spent down to 0, got %d", c.BalanceCheck(pub))
	}
}

func TestDoubleSpendIsDropped(t *testing.T) {
	c := New(testLogger())
	pub, priv, err := ledgercrypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	c.NewTransaction(IssuerAddress, pub, 1, "", 0)
	issuance := mineBlock(t, c)

	c.NewTransaction(pub, "Alice", 1, priv, issuance.Index)
	mineBlock(t, c)

	c.NewTransaction(pub, "Bob", 1, priv, issuance.Index)
	second := mineBlock(t, c)
	if len(second.Transactions) != 0 {
		t.Fatalf("expected double-spend to be dropped, got %d transactions", len(second.Transactions))
	}
	if c.BalanceCheck("Bob") != 0 {
		t.Fatalf("expected Bob's balance to remain 0, got %d", c.BalanceCheck("Bob"))
	}
}

func TestBadSignatureRejected(t *testing.T) {
	c := New(testLogger())
	pub, _, err := ledgercrypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	_, otherPriv, err := ledgercrypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	c.NewTransaction(IssuerAddress, pub, 1, "", 0)
	issuance := mineBlock(t, c)

	vote := c.NewTransaction(pub, "Alice", 1, otherPriv, issuance.Index)
	if validTransactionAgainst(vote, c.Snapshot()) {
		t.Fatalf("expected mismatched credential to fail validation")
	}
}

func TestDeriveWalletsRejectsNegativeBalance(t *testing.T) {
	c := New(testLogger())
	bad := []Block{
		c.LastBlock(),
		{
			Index:        1,
			PreviousHash: "whatever",
			Proof:        0,
			Timestamp:    0,
			Transactions: []Transaction{{Sender: "alice", Recipient: "bob", Amount: 5, Timestamp: 1}},
		},
	}
	_, _, ok := c.DeriveWallets(bad)
	if ok {
		t.Fatalf("expected negative-ending wallet to be rejected")
	}
}

func TestSubmitVoteAndMineIncludesVote(t *testing.T) {
	c := New(testLogger())
	pub, priv, err := ledgercrypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	c.NewTransaction(IssuerAddress, pub, 1, "", 0)
	issuance := mineBlock(t, c)

	last := c.LastBlock()
	lastHash, err := Hash(last)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	proof := powsolve.FindProof(last.Proof, lastHash)

	vote, block, included, err := c.SubmitVoteAndMine(pub, "Alice", 1, priv, issuance.Index, proof, lastHash)
	if err != nil {
		t.Fatalf("SubmitVoteAndMine: %v", err)
	}
	if !included {
		t.Fatalf("expected vote to be included in the mined block")
	}
	if len(block.Transactions) != 1 || block.Transactions[0].identity() != vote.identity() {
		t.Fatalf("expected mined block to contain exactly the submitted vote, got %+v", block.Transactions)
	}
	if c.BalanceCheck("Alice") != 1 {
		t.Fatalf("expected Alice's balance to be 1, got %d", c.BalanceCheck("Alice"))
	}
}

func TestSubmitVoteAndMineRecomputesStaleProof(t *testing.T) {
	c := New(testLogger())
	pub, priv, err := ledgercrypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	c.NewTransaction(IssuerAddress, pub, 1, "", 0)
	issuance := mineBlock(t, c)

	// Snapshot a proof against the current last block (the issuance block), then let the
	// chain grow past it before submitting, simulating a concurrent
	// resolve landing between the outside-lock PoW search and the vote.
	stale := c.LastBlock()
	staleHash, err := Hash(stale)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	staleProof := powsolve.FindProof(stale.Proof, staleHash)

	c.NewTransaction(IssuerAddress, "extra-voter", 1, "", 0)
	mineBlock(t, c)

	vote, block, included, err := c.SubmitVoteAndMine(pub, "Alice", 1, priv, issuance.Index, staleProof, staleHash)
	if err != nil {
		t.Fatalf("SubmitVoteAndMine: %v", err)
	}
	if !included {
		t.Fatalf("expected vote to be included despite stale proof")
	}
	wantPreviousHash, err := Hash(c.Snapshot()[block.Index-1])
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if block.PreviousHash != wantPreviousHash {
		t.Fatalf("expected recomputed previous_hash to chain onto the grown tip, got %q want %q", block.PreviousHash, wantPreviousHash)
	}
	if !powsolve.ValidProof(c.Snapshot()[block.Index-1].Proof, block.Proof, wantPreviousHash) {
		t.Fatalf("expected recomputed proof to be valid against the grown tip")
	}
	if vote.Sender != pub {
		t.Fatalf("expected returned vote to carry the original sender")
	}
}

func TestAdoptChainRequiresStrictlyLonger(t *testing.T) {
	c := New(testLogger())
	if c.AdoptChain(c.Snapshot(), map[string]int64{}, 0) {
		t.Fatalf("expected equal-length chain to be rejected")
	}
}
