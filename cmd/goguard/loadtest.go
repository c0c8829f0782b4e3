package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/settings"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure authorize and flood-control throughput",
	Long: `loadtest drives two phases against the engine:

  gate   edit-post checks, which never touch the activity store
  flood  create-thread checks plus RecordAction for new members,
         which read and write the activity store on every call

Without --redis-addr it runs against an in-process miniredis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subjects, _ := cmd.Flags().GetInt("subjects")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		ops, _ := cmd.Flags().GetInt("ops")
		addr, _ := cmd.Flags().GetString("redis-addr")
		if subjects <= 0 || concurrency <= 0 || ops <= 0 {
			return fmt.Errorf("subjects, concurrency, and ops must be > 0")
		}
		return runLoadtest(cmd.Context(), cmd.OutOrStdout(), addr, subjects, concurrency, ops)
	},
}

func init() {
	loadtestCmd.Flags().Int("subjects", 10000, "number of distinct subjects")
	loadtestCmd.Flags().Int("concurrency", 128, "number of concurrent workers")
	loadtestCmd.Flags().Int("ops", 100000, "operations per phase")
	loadtestCmd.Flags().String("redis-addr", "", "redis address; empty starts miniredis")
}

func runLoadtest(ctx context.Context, out io.Writer, addr string, n, concurrency, ops int) error {
	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	limits := settings.Defaults{
		CaptchaPeriod:             0,
		InitialAccountPeriodTotal: 1 << 30,
		InitialAccountPeriodLimit: 1 << 30,
		InitialAccountPeriodWidth: 24 * time.Hour,
		RecoveryTokenWidth:        time.Hour,
		MaxPostLength:             10000,
	}
	engCfg := offlineConfig()
	engCfg.KeyPrefix = "gg-load"
	engCfg.Metrics.Enabled = true
	engCfg.Metrics.EnableLatencyHistograms = true

	engine, err := goGuard.New().
		WithConfig(engCfg).
		WithRedis(client).
		WithSettings(limits.Memory()).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	faker := gofakeit.New(1)
	now := time.Now().UTC()
	population := make([]goGuard.Subject, n)
	for i := range population {
		population[i] = goGuard.Subject{
			ID:        fmt.Sprintf("load-%d", i),
			Username:  faker.Username(),
			CreatedAt: now.Add(-time.Duration(faker.Number(0, 48)) * time.Hour),
			IsActive:  true,
		}
	}

	gate := runPhase(concurrency, ops, 7919, func(r *rand.Rand) error {
		s := population[r.Intn(len(population))]
		_, err := engine.Authorize(ctx, goGuard.Request{
			Subject: s,
			Action:  goGuard.ActionEditPost,
			Post:    goGuard.Post{AuthorID: s.ID},
			Content: "edited",
		})
		return err
	})
	flood := runPhase(concurrency, ops, 6151, func(r *rand.Rand) error {
		s := population[r.Intn(len(population))]
		d, err := engine.Authorize(ctx, goGuard.Request{
			Subject: s,
			Action:  goGuard.ActionCreateThread,
			Content: "hello",
		})
		if err != nil || !d.Allowed {
			return err
		}
		return engine.RecordAction(ctx, s.ID)
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "gate", gate)
	printStats(out, "flood", flood)
	return nil
}

func runPhase(concurrency, ops int, seed int64, op func(*rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
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
		return phaseStats{total: total, failures: failures}
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

// percentile expects samples sorted ascending.
func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
