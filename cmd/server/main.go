package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"civforge.ai/internal/persistence/indexdb"
	persistlog "civforge.ai/internal/persistence/log"
	"civforge.ai/internal/sim/tuning"
	"civforge.ai/internal/sim/world/terrain"
	"civforge.ai/internal/sim/world/terrain/overlay"
	"civforge.ai/internal/transport/observer"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configPath   = flag.String("config", "./configs/terrain.yaml", "path to terrain.yaml (empty for defaults)")
		seed         = flag.String("seed", "", "world seed (overrides terrain.yaml)")
		size         = flag.Int("size", 0, "world size in cells (overrides terrain.yaml)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		disableDB    = flag.Bool("disable_db", false, "keep overlay deltas in memory only")
		resetOverlay = flag.Bool("reset_overlay", false, "discard persisted overlay deltas at startup")
		allowRemote  = flag.Bool("allow_remote", false, "serve non-loopback clients")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *configPath)
		tune = tuning.Defaults()
	}
	if s := strings.TrimSpace(*seed); s != "" {
		tune.WorldSeed = s
	}
	if *size > 0 {
		tune.WorldSize = *size
	}

	gen := terrain.New(tune.TerrainConfig())
	ov := overlay.NewStore()

	idx, err := openOverlayIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	defer idx.Close()

	ctx, cancel := signalContext()
	defer cancel()

	restoreCtx, restoreCancel := context.WithTimeout(ctx, 30*time.Second)
	n, err := restoreOverlay(restoreCtx, idx, ov, gen.Seed(), gen.WorldSize(), *resetOverlay, logger)
	restoreCancel()
	if err != nil {
		logger.Fatalf("restore overlay: %v", err)
	}
	logger.Printf("world seed=%q size=%d; restored %d overlay deltas", gen.Seed(), gen.WorldSize(), n)

	var sink observer.DeltaSink = idx
	if envBool("CF_OVERLAY_AUDIT", true) {
		audit := persistlog.NewOverlayAuditLogger(*dataDir)
		defer audit.Close()
		sink = multiSink{idx, audit}
	}

	obs := observer.NewServer(gen, ov, sink, log.New(os.Stdout, "[terrain] ", log.LstdFlags|log.Lmicroseconds))
	obs.AllowRemote = *allowRemote

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, gen, ov, idx)
	})
	obs.Routes(mux)

	if envBool("CF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (CF_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// writeMetrics emits a minimal Prometheus exposition.
func writeMetrics(rw http.ResponseWriter, g *terrain.Generator, ov *overlay.Store, idx indexdb.OverlayIndex) {
	cs := g.CacheStats()

	fmt.Fprintf(rw, "# HELP civforge_chunk_cache_entries Cached chunk count.\n")
	fmt.Fprintf(rw, "# TYPE civforge_chunk_cache_entries gauge\n")
	fmt.Fprintf(rw, "civforge_chunk_cache_entries %d\n", cs.Entries)
	fmt.Fprintf(rw, "civforge_chunk_cache_capacity %d\n", cs.Capacity)

	fmt.Fprintf(rw, "# HELP civforge_chunk_cache_total Chunk cache lookups by result.\n")
	fmt.Fprintf(rw, "# TYPE civforge_chunk_cache_total counter\n")
	fmt.Fprintf(rw, "civforge_chunk_cache_total{result=%q} %d\n", "hit", cs.Hits)
	fmt.Fprintf(rw, "civforge_chunk_cache_total{result=%q} %d\n", "miss", cs.Misses)
	fmt.Fprintf(rw, "civforge_chunk_cache_total{result=%q} %d\n", "eviction", cs.Evictions)

	fmt.Fprintf(rw, "# HELP civforge_overlay_deltas Cells carrying an overlay delta.\n")
	fmt.Fprintf(rw, "# TYPE civforge_overlay_deltas gauge\n")
	fmt.Fprintf(rw, "civforge_overlay_deltas %d\n", ov.Len())

	if s, ok := idx.(*indexdb.SQLiteIndex); ok {
		st := s.Stats()
		fmt.Fprintf(rw, "# HELP civforge_index_queue_depth Overlay index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE civforge_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "civforge_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "civforge_index_queue_capacity %d\n", st.QueueCapacity)
		fmt.Fprintf(rw, "# HELP civforge_index_dropped_total Overlay writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE civforge_index_dropped_total counter\n")
		fmt.Fprintf(rw, "civforge_index_dropped_total %d\n", st.DropTotal)
		fmt.Fprintf(rw, "civforge_index_error_total %d\n", st.ErrorTotal)
	}
}

// multiSink fans overlay mutations out to every sink and reports the first
// error. Later sinks still run.
type multiSink []observer.DeltaSink

func (m multiSink) SaveDelta(x, y int, d overlay.Delta) error {
	var first error
	for _, s := range m {
		if err := s.SaveDelta(x, y, d); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiSink) Reset() error {
	var first error
	for _, s := range m {
		if err := s.Reset(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
