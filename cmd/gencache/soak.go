package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/config"
	asynchook "github.com/unkn0wn-root/gencache/hooks/async"
	gczap "github.com/unkn0wn-root/gencache/log/zap"
	"github.com/unkn0wn-root/gencache/notify/redisnotify"
)

type soakParams struct {
	Workers    int
	Duration   time.Duration
	Namespaces int
	Keys       int
	Seed       uint64
}

type soakReport struct {
	Ops            uint64         `json:"ops"`
	OpsPerSec      float64        `json:"ops_per_sec"`
	Elapsed        time.Duration  `json:"elapsed"`
	DoubleDisposed uint64         `json:"double_disposed"`
	Stats          gencache.Stats `json:"stats"`
	HitRate        float64        `json:"hit_rate"`
}

var soakFlags struct {
	params soakParams
	asJSON bool
}

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Hammer a store with mixed reads, writes and expirations",
	Long: `Run concurrent workers against an in-process store and report counters.

Store settings come from GENCACHE_* variables. When GENCACHE_REDIS_URL is
set, every removal is also published to GENCACHE_REDIS_CHANNEL.

Examples:
  gencache soak --workers 8 --duration 30s
  GENCACHE_DEFAULT_CAPACITY=1000 gencache soak --json`,
	RunE: runSoakCmd,
}

func init() {
	f := soakCmd.Flags()
	f.IntVar(&soakFlags.params.Workers, "workers", 4, "concurrent workers")
	f.DurationVar(&soakFlags.params.Duration, "duration", 10*time.Second, "how long to run")
	f.IntVar(&soakFlags.params.Namespaces, "namespaces", 4, "number of namespaces")
	f.IntVar(&soakFlags.params.Keys, "keys", 5000, "keys per namespace")
	f.Uint64Var(&soakFlags.params.Seed, "seed", 1, "random seed")
	f.BoolVar(&soakFlags.asJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(soakCmd)
}

func runSoakCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()

	hooks := asynchook.New(loggingHooks{l: zl}, 1, 256)
	defer hooks.Close()

	opts := cfg.Options()
	opts.Logger = gczap.New(zl)
	opts.Hooks = hooks
	store, err := gencache.New(opts)
	if err != nil {
		return err
	}

	if cfg.Redis.Enabled() {
		pub, err := newRedisPublisher(cfg.Redis, zl)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pub.Close(ctx); err != nil {
				zl.Warn("flush removal publisher", zap.Error(err))
			}
			zl.Info("removal publisher stopped", zap.Any("stats", pub.Stats()))
		}()
		store.RegisterRemovalHandler(pub.Handler())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl.Info("soak started",
		zap.Int("workers", soakFlags.params.Workers),
		zap.Duration("duration", soakFlags.params.Duration))
	rep := runSoak(ctx, store, soakFlags.params)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), rep, soakFlags.asJSON)
}

func newRedisPublisher(rc config.Redis, zl *zap.Logger) (*redisnotify.Publisher, error) {
	ro, err := redis.ParseURL(rc.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	id, err := rc.CodecID()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ro)
	return redisnotify.NewPublisher(rdb, redisnotify.Options{
		Channel:   rc.Channel,
		Codec:     id,
		QueueSize: rc.QueueSize,
		BatchSize: rc.BatchSize,
		Timeout:   rc.Timeout,
		Logger:    gczap.New(zl),
	})
}

// payload counts its own disposals so the soak can detect double release.
type payload struct {
	n        int
	disposed atomic.Int32
	doubles  *atomic.Uint64
}

func (p *payload) Dispose() error {
	if p.disposed.Add(1) > 1 {
		p.doubles.Add(1)
	}
	return nil
}

func runSoak(ctx context.Context, s gencache.Store, p soakParams) soakReport {
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.Namespaces <= 0 {
		p.Namespaces = 1
	}
	if p.Keys <= 0 {
		p.Keys = 1
	}
	if p.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Duration)
		defer cancel()
	}

	namespaces := make([]string, p.Namespaces)
	for i := range namespaces {
		namespaces[i] = "ns" + strconv.Itoa(i)
	}

	var (
		ops     atomic.Uint64
		doubles atomic.Uint64
		wg      sync.WaitGroup
	)
	start := time.Now()
	for w := 0; w < p.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(p.Seed, uint64(w)))
			for ctx.Err() == nil {
				ns := namespaces[rng.IntN(len(namespaces))]
				key := strconv.Itoa(rng.IntN(p.Keys))
				switch op := rng.IntN(100); {
				case op < 60:
					s.Get(ns, key)
				case op < 85:
					v := &payload{n: rng.Int(), doubles: &doubles}
					_ = s.Set(ns, key, v, randomExpiration(rng))
				case op < 90:
					s.Delete(ns, key)
				case op < 93:
					if v, ok := s.Remove(ns, key); ok {
						// ownership moved to us
						if d, ok := v.(*payload); ok {
							_ = d.Dispose()
						}
					}
				default:
					_, _ = s.GetOrAdd(ctx, ns, key, func(context.Context) (any, gencache.Expiration, error) {
						return &payload{doubles: &doubles}, gencache.Sliding(time.Second), nil
					})
				}
				ops.Add(1)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	st := s.Stats()
	return soakReport{
		Ops:            ops.Load(),
		OpsPerSec:      float64(ops.Load()) / elapsed.Seconds(),
		Elapsed:        elapsed,
		DoubleDisposed: doubles.Load(),
		Stats:          st,
		HitRate:        st.HitRate(),
	}
}

func randomExpiration(rng *rand.Rand) gencache.Expiration {
	switch rng.IntN(3) {
	case 0:
		return gencache.Never()
	case 1:
		return gencache.Sliding(time.Duration(50+rng.IntN(500)) * time.Millisecond)
	default:
		return gencache.After(time.Now(), time.Duration(50+rng.IntN(500))*time.Millisecond)
	}
}

func printReport(w io.Writer, r soakReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	st := r.Stats
	fmt.Fprintf(w, "ops:             %d (%.0f/s over %s)\n", r.Ops, r.OpsPerSec, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "hits/misses:     %d/%d (%.1f%%)\n", st.Hits, st.Misses, r.HitRate*100)
	fmt.Fprintf(w, "sets:            %d\n", st.Sets)
	fmt.Fprintf(w, "removed/deleted: %d/%d\n", st.Removed, st.Deleted)
	fmt.Fprintf(w, "expired:         %d\n", st.Expired)
	fmt.Fprintf(w, "evicted:         %d\n", st.Evicted)
	fmt.Fprintf(w, "replaced:        %d\n", st.Replaced)
	fmt.Fprintf(w, "sweeps:          %d (generation %d)\n", st.Sweeps, st.Generation)
	fmt.Fprintf(w, "entries:         %d in %d namespaces\n", st.Entries, st.Namespaces)
	fmt.Fprintf(w, "double disposed: %d\n", r.DoubleDisposed)
	return nil
}
