// Command cjlscore wires the incremental compilation orchestrator into a
// runnable process: it loads configuration, builds the orchestrator and
// its document worker, starts the persisted-cache GC, and serves
// Prometheus metrics. Translating client requests (LSP JSON-RPC) into
// calls against the orchestrator is the embedder's job — the transport
// itself is out of scope here (see internal/protocol and
// internal/diagnostics for the wire-format half of that boundary).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saibing/cjlscore/internal/config"
	"github.com/saibing/cjlscore/internal/docworker"
	"github.com/saibing/cjlscore/internal/frontend/fakefrontend"
	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/index/dbindex"
	"github.com/saibing/cjlscore/internal/index/memindex"
	"github.com/saibing/cjlscore/internal/metrics"
	"github.com/saibing/cjlscore/internal/orchestrator"
)

var (
	initOptions  = flag.String("init-options", "", "path to a JSON file with LSP initializationOptions, or empty for defaults")
	workspace    = flag.String("workspace-descriptor", "", "optional TOML workspace descriptor (cjproject.toml) layered over init-options")
	indexDB      = flag.String("index-db", "", "path to a SQLite index database; empty uses the in-memory index")
	metricsAddr  = flag.String("metrics-addr", ":9469", "address to serve Prometheus metrics on")
	printVersion = flag.Bool("version", false, "print version and exit")
)

const version = "v1-dev"

func main() {
	flag.Parse()
	if *printVersion {
		fmt.Println(version)
		return
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("cjlscore exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rec := metrics.New()
	go serveMetrics(log, rec)

	idx, closeIdx, err := openIndex()
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer closeIdx()

	// The real lexer/parser/checker/macro-expander is an external
	// collaborator (spec §1) with no in-repo implementation; an embedder
	// links in a concrete frontend.Frontend here in place of this
	// deterministic stand-in.
	fe := fakefrontend.New()

	orch := orchestrator.New(cfg, fe, idx, log, rec)
	defer orch.Close()
	orch.StartCacheGC()

	worker := docworker.New(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	log.Info("cjlscore orchestrator ready", zap.String("metrics_addr", *metricsAddr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	worker.Stop()
	return nil
}

func loadConfig() (config.Config, error) {
	var base config.Config
	if *initOptions != "" {
		raw, err := os.ReadFile(*initOptions)
		if err != nil {
			return config.Config{}, err
		}
		base, err = config.ParseInitializationOptions(json.RawMessage(raw))
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.LoadWorkspaceDescriptor(*workspace, base)
}

// openIndex picks the symbol-index backend: durable SQLite when
// -index-db is set, otherwise the plain in-memory implementation.
func openIndex() (index.Index, func(), error) {
	if *indexDB == "" {
		return memindex.New(), func() {}, nil
	}
	x, err := dbindex.Open(*indexDB)
	if err != nil {
		return nil, nil, err
	}
	return x, func() { x.Close() }, nil
}

func serveMetrics(log *zap.Logger, rec *metrics.Recorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rec.Gatherer(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
