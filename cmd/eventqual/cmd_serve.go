package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"eventqual/internal/logging"
	"eventqual/internal/server"
	"eventqual/internal/system"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the qualification API:

  POST /qualify            {person_name, event_details}
  POST /qualify-from-url   {person_name, event_url}
  GET  /knowledge/search   ?query=&mode=&limit=&alpha=&filter=&include_scores=
  GET  /knowledge/collections
  GET  /health

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sys, err := system.Boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to boot: %w", err)
	}
	defer sys.Close()

	srv := server.New(sys.Orchestrator, knowledgeReader(sys), server.Options{
		Addr:              cfg.Server.Addr,
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		CORSOrigins:       cfg.Server.CORSOrigins,
		ShutdownTimeout:   cfg.GetShutdownTimeout(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Server("Received shutdown signal")
		return nil
	})
	return g.Wait()
}

// knowledgeReader avoids handing a typed nil store to an interface.
func knowledgeReader(sys *system.System) server.Knowledge {
	if sys.Knowledge == nil {
		return nil
	}
	return sys.Knowledge
}
