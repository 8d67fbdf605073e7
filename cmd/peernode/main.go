// Command peernode runs a long-running peer node: it imports a chain from
// a source, locks total value, and serves votes, resolution, and broadcast
// for the lifetime of the process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samchamper/ballotchain/internal/bootstrap"
	"github.com/samchamper/ballotchain/internal/httpapi"
	"github.com/samchamper/ballotchain/internal/ledger"
	"github.com/samchamper/ballotchain/internal/nodelog"
	"github.com/samchamper/ballotchain/internal/peerset"
	"github.com/samchamper/ballotchain/internal/reconcile"
)

func main() {
	var (
		port   int
		source string
	)

	root := &cobra.Command{
		Use:   "peernode",
		Short: "Join the election peer mesh and serve votes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(port, source)
		},
	}
	root.Flags().IntVar(&port, "port", 5000, "port to listen on")
	root.Flags().StringVar(&source, "source", "http://127.0.0.1:4999/", "chain source to bootstrap from")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(port int, source string) error {
	log := nodelog.New()
	entry := log.WithField("node", "peer")

	chain := ledger.New(log)
	peers := peerset.New()
	client := reconcile.NewHTTPClient()

	ctx := context.Background()
	if err := bootstrap.Initialize(ctx, chain, peers, client, source, port, entry); err != nil {
		return fmt.Errorf("peernode: bootstrap failed: %w", err)
	}
	chain.Lock()
	entry.WithField("total_value", chain.TotalValue()).Info("ledger locked, total value frozen")

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: httpapi.NewPeerRouter(httpapi.NewPeerServer(chain, peers, client, port, "", entry)),
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		entry.WithField("port", port).Info("peer node serving")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case sig := <-signals:
		entry.WithField("signal", sig.String()).Info("caught signal, starting graceful exit")
		bootstrap.GracefulExit(ctx, peers, client, port, entry)
		return server.Close()
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("peernode: server error: %w", err)
		}
		return nil
	}
}
