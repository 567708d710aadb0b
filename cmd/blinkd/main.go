// Command blinkd runs the BLINK server: a RESP-speaking TCP front end
// backed by the two-tier cache-over-durable-map storage engine.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/blinkdb/blink/internal/cache"
	"github.com/blinkdb/blink/internal/durable"
	"github.com/blinkdb/blink/internal/engine"
	"github.com/blinkdb/blink/internal/metrics/prom"
	"github.com/blinkdb/blink/internal/netfront"
)

func main() {
	log.Logger = log.With().Caller().Logger()

	port := flag.Int("port", 9001, "port to listen on")
	dataDir := flag.String("data-dir", defaultDataDir(), "directory for the durable map's data file")
	capacity := flag.Int("cache-capacity", 100_000, "maximum number of resident cache entries")
	fsync := flag.Bool("fsync", false, "fsync the durable map after every rewrite")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on; empty disables it")
	level := flag.String("log-level", "info", `log level: "debug", "info", or "warn"`)
	flag.Parse()

	addr := fmt.Sprintf(":%d", *port)

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	metricsAdapter := prom.New(prometheus.DefaultRegisterer, "blink")

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", *metricsAddr).Msg("serving metrics")
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	dm, err := durable.Open(*dataDir, durable.Options{
		Fsync:  *fsync,
		Logger: log.Logger,
	})
	if err != nil {
		log.Error().Err(err).Str("dataDir", *dataDir).Msg("cannot open durable map")
		os.Exit(1)
	}

	c := cache.New(cache.Options{
		Capacity: *capacity,
		Metrics:  metricsAdapter,
	})

	eng := engine.New(c, dm, engine.Options{
		Metrics: metricsAdapter,
		Logger:  log.Logger,
	})

	srv, err := netfront.New(addr, eng, netfront.Options{
		Logger: log.Logger,
	})
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("cannot start listener")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		srv.Stop()
	}()

	log.Info().
		Str("addr", addr).
		Str("dataDir", *dataDir).
		Int("cacheCapacity", *capacity).
		Msg("blinkd starting")

	if err := srv.Run(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

// defaultDataDir resolves to the running executable's own directory (the
// Go stand-in for the original's "<exe_dir>"), falling back to the
// current working directory if the executable's own path cannot be
// determined (e.g. under some test harnesses). disk_storage/ is created
// underneath whichever directory this returns.
func defaultDataDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
