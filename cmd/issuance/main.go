// Command issuance runs the one-shot issuance node: it mines one block per
// voter, serves a single ledger download, and terminates.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/samchamper/ballotchain/internal/bootstrap"
	"github.com/samchamper/ballotchain/internal/httpapi"
	"github.com/samchamper/ballotchain/internal/ledger"
	"github.com/samchamper/ballotchain/internal/nodelog"
)

func main() {
	var (
		port           int
		numVotes       int
		votesPerPerson int
	)

	root := &cobra.Command{
		Use:   "issuance",
		Short: "Mint voter credentials and serve the resulting chain once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(port, numVotes, votesPerPerson)
		},
	}
	root.Flags().IntVar(&port, "port", 4999, "port to listen on")
	root.Flags().IntVar(&numVotes, "numvotes", 10, "number of voter credentials to mint")
	root.Flags().IntVar(&votesPerPerson, "votes_per_person", 1, "votes credited to each credential")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(port, numVotes, votesPerPerson int) error {
	log := nodelog.New()
	entry := log.WithField("node", "issuance")

	chain := ledger.New(log)
	if err := bootstrap.MineIssuance(chain, numVotes, votesPerPerson, "", entry); err != nil {
		return fmt.Errorf("issuance: mining failed: %w", err)
	}

	shutdown := make(chan struct{}, 1)
	router := httpapi.NewIssuanceRouter(chain, shutdown, entry)

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		entry.WithField("port", port).Info("issuance node serving chain download")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-shutdown:
		entry.Info("chain served, shutting down")
		return server.Close()
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("issuance: server error: %w", err)
		}
		return nil
	}
}
