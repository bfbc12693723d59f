// Command goguard-sim drives a Provider through concurrent login and PHI
// access traffic and prints latency percentiles plus the exported counters.
//
// Without -redis-addr (or REDIS_ADDR) it runs against an embedded miniredis.
// -store=sqlite uses the GORM-backed store instead.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/kv"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional TOML config file")
		backend     = flag.String("store", "redis", "store backend: redis or sqlite")
		sqlitePath  = flag.String("sqlite", "file::memory:?cache=shared", "sqlite DSN for -store=sqlite")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		users       = flag.Int("users", 1000, "number of distinct identifiers")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		failRate    = flag.Float64("fail-rate", 0.3, "fraction of login attempts that fail")
		showMetrics = flag.Bool("metrics", false, "print Prometheus exposition after the run")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := goGuard.LoadConfigFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if len(cfg.Store.SealingKey) == 0 {
		cfg.Store.SealingKey = make([]byte, 32)
		if _, err := rand.Read(cfg.Store.SealingKey); err != nil {
			fmt.Fprintf(os.Stderr, "sealing key: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	b := goGuard.New().WithLogger(logger)

	switch *backend {
	case "redis":
		client, cleanup, err := openRedis(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		b = b.WithRedis(client)
	case "sqlite":
		store, err := kv.OpenSQLite(*sqlitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqlite: %v\n", err)
			os.Exit(1)
		}
		b = b.WithStore(store)
		fmt.Printf("using sqlite at %s\n", *sqlitePath)
	default:
		fmt.Fprintf(os.Stderr, "unknown store %q\n", *backend)
		os.Exit(2)
	}

	p, err := b.WithConfig(cfg).Build(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	if _, err := p.StartSession(ctx, "user-0"); err != nil {
		fmt.Fprintf(os.Stderr, "start session: %v\n", err)
		os.Exit(1)
	}

	loginStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		id := fmt.Sprintf("user-%d@example.com", r.Intn(*users))
		_, err := p.HandleLoginAttempt(ctx, id, r.Float64() >= *failRate)
		return err
	})
	phiStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		requested := fmt.Sprintf("user-%d", r.Intn(4))
		p.ValidatePHIAccess(ctx, "user-0", requested, "mood_entries")
		return nil
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("phi", phiStats)

	report := p.ComplianceReport()
	fmt.Printf("session timeout=%s lockout=%d/%s answers hashed=%v sealed=%v\n",
		report.SessionTimeout, report.LockoutMaxAttempts, report.LockoutDuration,
		report.QuestionAnswersHashed, report.SealedSecureStore)

	if *showMetrics {
		fmt.Print(prometheus.NewExporter(p).Render())
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func runPhase(ops, concurrency int, op func(r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d errors=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
