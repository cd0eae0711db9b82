package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gtarraga/yakv/internal/engine"
	"github.com/gtarraga/yakv/internal/server"
	"github.com/gtarraga/yakv/internal/workerpool"
	"github.com/rs/zerolog"
)

func main() {
	addr := flag.String("addr", "", "address to bind, host:port (required)")
	dataDir := flag.String("data-dir", "data", "data directory")
	engineName := flag.String("engine", string(engine.KindYakv), "storage engine: yakv or sled")
	poolKind := flag.String("pool", "shared", "worker pool: shared or naive")
	threads := flag.Int("threads", runtime.NumCPU(), "worker pool size (shared pool only)")
	compactionThreshold := flag.Int64("compaction-threshold", 1<<20, "stale-byte watermark that triggers compaction")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "yakv-server").Logger()

	if *addr == "" {
		logger.Error().Msg("--addr is required")
		os.Exit(1)
	}

	kind, err := engine.ParseKind(*engineName)
	if err != nil {
		logger.Error().Err(err).Msg("invalid --engine")
		os.Exit(1)
	}

	eng, err := engine.Open(*dataDir, kind, engine.Options{
		CompactionThreshold: *compactionThreshold,
		Logger:              logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to open engine")
		os.Exit(1)
	}
	defer eng.Close()

	pool, err := newPool(*poolKind, *threads)
	if err != nil {
		logger.Error().Err(err).Msg("invalid --pool")
		os.Exit(1)
	}
	defer pool.Close()

	srv, err := server.New(*addr, eng, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to bind listener")
		os.Exit(1)
	}

	logger.Info().
		Str("addr", srv.Addr().String()).
		Str("engine", string(kind)).
		Str("pool", *poolKind).
		Int("threads", *threads).
		Msg("yakv-server listening")

	if err := srv.Serve(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

// newPool builds the worker pool named by kind. "naive" ignores
// threads (NaivePool has no fixed worker count), matching
// workerpool.NewNaive's documented contract.
func newPool(kind string, threads int) (workerpool.Pool, error) {
	switch kind {
	case "shared":
		return workerpool.New(threads), nil
	case "naive":
		return workerpool.NewNaive(threads), nil
	default:
		return nil, fmt.Errorf("unknown pool kind %q (want \"shared\" or \"naive\")", kind)
	}
}
