package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bsvalues/terrafield/internal/buildinfo"
	"github.com/bsvalues/terrafield/internal/cli"
	"github.com/bsvalues/terrafield/internal/config"
	"github.com/bsvalues/terrafield/internal/document"
	"github.com/bsvalues/terrafield/internal/engine"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/netmon"
	"github.com/bsvalues/terrafield/internal/queue"
	"github.com/bsvalues/terrafield/internal/remote"
	"github.com/bsvalues/terrafield/internal/request"
	"github.com/bsvalues/terrafield/internal/securestore"
	"github.com/bsvalues/terrafield/internal/store"
	"github.com/bsvalues/terrafield/internal/transport"

	_ "modernc.org/sqlite"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()
	log := logging.NewJSON(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	for _, p := range []string{cfg.DatabasePath, cfg.TokenFilePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	st, db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer db.Close()

	tokens := securestore.NewFileStore(cfg.TokenFilePath, localPassphrase())
	client := transport.New(cfg.APIBaseURL, tokens, log,
		transport.WithTimeout(cfg.RequestTimeout))

	monitor := netmon.New(netmon.ProbeFunc(client.Ping), st, log, cfg.OnlineCheckInterval)
	go monitor.Run(ctx)

	// load before anything can drain, so work queued by a previous run
	// survives the restart
	reqQueue := request.NewQueue(st, log)
	if err := reqQueue.Load(ctx); err != nil {
		return fmt.Errorf("restore request queue: %w", err)
	}
	fragQueue := document.NewQueue(st, log)
	if err := fragQueue.Load(ctx); err != nil {
		return fmt.Errorf("restore fragment queue: %w", err)
	}

	reqProc := queue.NewProcessor(reqQueue, request.Deliver(client), cfg.MaxRetries, log,
		queue.WithOnDrop[request.OfflineRequest](func(r request.OfflineRequest, err error) {
			log.Error(ctx, "request dropped after max retries",
				"id", r.ID, "method", r.Method, "url", r.URL, "error", err)
		}))
	fragProc := queue.NewProcessor(fragQueue, document.Deliver(client), cfg.MaxRetries, log,
		queue.WithOnDrop[document.SyncFragment](func(f document.SyncFragment, err error) {
			log.Error(ctx, "fragment dropped after max retries",
				"id", f.ID, "document_id", f.DocumentID, "error", err)
		}))

	registry := document.NewRegistry(fragQueue, log,
		document.UnregisteredPolicy(cfg.UnregisteredFragments))

	dispatcher := request.NewDispatcher(client, reqQueue, monitor, log)

	eng := engine.New(monitor, reqQueue, fragQueue, reqProc, fragProc, cfg.DrainInterval, log)
	eng.Start(ctx)
	defer eng.Stop()

	if cfg.PushURL != "" {
		listener := remote.New(cfg.PushURL, tokens, registry, log)
		go listener.Run(ctx)
	}

	app := cli.NewApp(cfg, client, eng, registry, dispatcher, tokens, log)
	app.Run(ctx)
	return nil
}

// localPassphrase derives a machine-local passphrase for the token file.
// Tokens are short-lived; this guards against casual file copying, not
// against an attacker with local code execution.
func localPassphrase() []byte {
	host, err := os.Hostname()
	if err != nil {
		host = "terrafield"
	}
	return []byte("terrafield:" + host)
}
