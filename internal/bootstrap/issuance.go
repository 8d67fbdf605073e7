// Package bootstrap implements the one-shot mining lifecycle of the
// issuance node and the initialize/lock/graceful-exit lifecycle of the
// peer node.
package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samchamper/ballotchain/internal/ledger"
	"github.com/samchamper/ballotchain/internal/ledgercrypto"
	"github.com/samchamper/ballotchain/internal/powsolve"
	"github.com/samchamper/ballotchain/internal/votefile"
)

// MineIssuance generates numVotes independent key pairs, mining one block
// per pair that credits votesPerPerson to the new public key, and writes
// each private key out as the per-voter credential file. Returns once all
// blocks are formed; the caller is then free to serve /chain/.
func MineIssuance(chain *ledger.Chain, numVotes, votesPerPerson int, secretKeysDir string, log *logrus.Entry) error {
	if secretKeysDir == "" {
		secretKeysDir = votefile.DefaultSecretKeysDir
	}
	for i := 1; i <= numVotes; i++ {
		public, private, err := ledgercrypto.NewKeypair()
		if err != nil {
			return fmt.Errorf("bootstrap: generate keypair %d: %w", i, err)
		}

		last := chain.LastBlock()
		lastHash, err := ledger.Hash(last)
		if err != nil {
			return fmt.Errorf("bootstrap: hash last block before issuance %d: %w", i, err)
		}
		proof := powsolve.FindProof(last.Proof, lastHash)

		chain.NewTransaction(ledger.IssuerAddress, public, int64(votesPerPerson), "", 0)
		block, err := chain.NewBlock(proof, lastHash)
		if err != nil {
			return fmt.Errorf("bootstrap: form issuance block %d: %w", i, err)
		}

		// The credential handed to the voter is the private key text
		// itself, presented later as the /vote/ "key" field and re-signed
		// against "NO COLLUSION" at spend time (ledger.validTransactionAgainst).
		if err := votefile.WriteCredential(secretKeysDir, i, private); err != nil {
			return fmt.Errorf("bootstrap: persist credential %d: %w", i, err)
		}

		log.WithFields(logrus.Fields{
			"voter": i,
			"block": block.Index,
			"votes": votesPerPerson,
		}).Info("issuance block mined")
	}
	log.WithFields(logrus.Fields{
		"voters":      numVotes,
		"total_value": chain.TotalValue(),
	}).Info("issuance complete")
	return nil
}
