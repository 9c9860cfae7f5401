package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
)

type benchFlags struct {
	sessions    int
	concurrency int
	ops         int
}

func benchCmd(g *globalFlags) *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive concurrent session traffic through the Manager",
		Long: `Seeds sessions, then runs a read-only phase and a read-write phase against the
configured backend. A redis backend without an address runs against an embedded miniredis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.sessions <= 0 || f.concurrency <= 0 || f.ops <= 0 {
				return fmt.Errorf("sessions, concurrency, and ops must be > 0")
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg, f)
		},
	}
	cmd.Flags().IntVar(&f.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 128, "number of concurrent workers")
	cmd.Flags().IntVar(&f.ops, "ops", 100000, "operations per phase")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, cfg goSession.Config, f benchFlags) error {
	b := goSession.New()

	if cfg.Backend == goSession.BackendRedis && cfg.Redis.Addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		defer client.Close()
		b = b.WithRedis(client)
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	}

	m, err := b.WithConfig(cfg).BuildContext(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	name := cfg.Session.Name
	cookies := make([]string, f.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", f.sessions)
	start := time.Now()
	for i := range cookies {
		id, err := seedSession(ctx, m, name, i)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cookies[i] = id
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(start).Round(time.Millisecond))

	read := runPhase(f, func(r *mrand.Rand) error {
		req := benchRequest(name, cookies[r.IntN(len(cookies))])
		_, ok, err := m.StartReadOnly(ctx, httptest.NewRecorder(), req)
		if err == nil && !ok {
			err = fmt.Errorf("session missing")
		}
		return err
	})

	write := runPhase(f, func(r *mrand.Rand) error {
		req := benchRequest(name, cookies[r.IntN(len(cookies))])
		s, err := m.Start(ctx, httptest.NewRecorder(), req)
		if err != nil {
			return err
		}
		if err := s.Set("n", r.Int()); err != nil {
			s.Abort(ctx)
			return err
		}
		return s.Commit(ctx)
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "read-only", read)
	printStats(out, "read-write", write)
	return nil
}

func seedSession(ctx context.Context, m *goSession.Manager, name string, i int) (string, error) {
	rec := httptest.NewRecorder()
	s, err := m.Start(ctx, rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		return "", err
	}
	if err := s.Set("n", i); err != nil {
		s.Abort(ctx)
		return "", err
	}
	if err := s.Commit(ctx); err != nil {
		return "", err
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("no %s cookie issued", name)
}

func benchRequest(name, id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: name, Value: id})
	return req
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

func runPhase(f benchFlags, op func(*mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, f.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < f.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var seed [32]byte
			_, _ = rand.Read(seed[:])
			r := mrand.New(mrand.NewChaCha8(seed))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > f.ops {
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
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
