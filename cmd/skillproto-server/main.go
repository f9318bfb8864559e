// Command skillproto-server runs the skill protocol HTTP API (spec.md §6.1),
// wiring together the registry, sandbox runtime, scheduler, orchestrator,
// and discovery index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danshapiro/skillproto/internal/apiserver"
	"github.com/danshapiro/skillproto/internal/config"
	"github.com/danshapiro/skillproto/internal/discovery"
	"github.com/danshapiro/skillproto/internal/orchestrator"
	"github.com/danshapiro/skillproto/internal/registry"
	"github.com/danshapiro/skillproto/internal/runstate"
	"github.com/danshapiro/skillproto/internal/sandbox"
	"github.com/danshapiro/skillproto/internal/scheduler"
	"github.com/danshapiro/skillproto/internal/version"
)

func main() {
	var (
		overlayPath = flag.String("config", "", "optional YAML configuration overlay path")
		showVersion = flag.Bool("version", false, "print version and exit")
		pythonExe   = flag.String("python", "python3", "python interpreter used to launch python skills")
		nodeExe     = flag.String("node", "node", "node interpreter used to launch typescript skills")
		goExe       = flag.String("go", "go", "go toolchain used to launch go skills")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("skillproto-server %s\n", version.Version)
		return
	}

	cfg, err := config.Load(*overlayPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := log.New(os.Stderr, "[skillproto] ", log.LstdFlags)

	meta := registry.NewInMemoryMetadataStore()
	blobs := registry.NewInMemoryBlobStore()
	reg := registry.New(meta, blobs, logger)

	launchers := sandbox.DefaultLaunchers(*pythonExe, *nodeExe, *goExe)
	rt := sandbox.New(logger, launchers, sandbox.DefaultMaterialize)

	ctx, stop := signalCancelContext()
	defer stop()

	sched := scheduler.New(ctx, scheduler.Config{
		MaxConcurrent:  cfg.MaxConcurrent,
		AsyncQueueSize: cfg.AsyncQueueSize,
	}, reg, rt, logger)

	orch := orchestrator.New(sched, logger)
	disc := discovery.New(reg)

	srv := apiserver.New(apiserver.Config{
		Addr:         cfg.Addr(),
		APIPrefix:    cfg.APIPrefix,
		AuthRequired: cfg.AuthRequired,
		AuthHeader:   cfg.AuthHeader,
		APIKeys:      cfg.APIKeySet(),
	}, reg, sched, orch, disc, logger)

	stopSnapshots := make(chan struct{})
	writer := runstate.NewWriter(sched, cfg.RunStatePath, time.Duration(cfg.RunStateInterval)*time.Second)
	go writer.Run(stopSnapshots)

	go func() {
		<-ctx.Done()
		close(stopSnapshots)
		srv.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}

// signalCancelContext returns a context cancelled on SIGINT/SIGTERM,
// grounded on the teacher's cmd/kilroy/main.go helper of the same name.
func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-stopCh:
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel()
	}
	return ctx, cleanup
}
