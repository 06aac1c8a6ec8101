// Command warm-routes fills the route cache with neighborhood centroid pairs
// so the first calendar queries of the day do not pay for them.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	service "github.com/okian/photodispatch/internal/app"
	"github.com/okian/photodispatch/internal/config"
	"github.com/okian/photodispatch/internal/infra"
	"github.com/okian/photodispatch/internal/routewarm"
	"github.com/okian/photodispatch/pkg/logger"
)

const defaultTimeout = 30 * time.Minute

func main() {
	var (
		neighborhoods = flag.String("neighborhoods", "", "Comma-separated neighborhoods to pair (default: the whole centroid table)")
		workers       = flag.Int("workers", 0, "Number of concurrent resolvers (default: warm_workers from config)")
		timeout       = flag.Duration("timeout", defaultTimeout, "Give up after this long")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, splitList(*neighborhoods), *workers); err != nil {
		logger.Get().Error(ctx, "route warm-up failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, neighborhoods []string, workers int) error {
	log := logger.Named("warm-routes")

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	if workers <= 0 {
		workers = cfg.WarmWorkers
	}

	res, err := infra.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = res.Close() }()

	svc, err := service.New(res.Store, cfg, append(res.Options, service.WithLogger(log))...)
	if err != nil {
		return err
	}

	pairs := routewarm.ClusterPairs(neighborhoods)
	warmer := routewarm.New(svc.Distances(), cfg.WarmQueueSize, workers, log)
	warmer.Start(ctx)

	start := time.Now()
	stats, err := warmer.Run(ctx, pairs)
	log.Info(ctx, "route warm-up summary",
		logger.Int("pairs", len(pairs)),
		logger.Int("processed", int(stats.Processed)),
		logger.Int("failed", int(stats.Failed)),
		logger.Duration("elapsed", time.Since(start)))
	return err
}

// splitList parses a comma-separated flag value.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
