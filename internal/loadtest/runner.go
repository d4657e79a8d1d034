// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/winkstreaming/rtspstack/internal/rtsp"
)

// Runner orchestrates a load test: it spawns client connections at a
// configured rate (or, in RealWorld mode, hands off to Simulator) and
// aggregates their outcomes.
type Runner struct {
	config Config
	log    zerolog.Logger

	activeConnects atomic.Int64
	totalConnects  atomic.Int64
	totalFailures  atomic.Int64
	connectLatency atomic.Int64 // cumulative milliseconds
	connectCount   atomic.Int64
	rtpPackets     atomic.Uint64
	rtpLoss        atomic.Uint64
	rtpBytes       atomic.Uint64
	badClients     atomic.Int64
	badClientTypes sync.Map

	latencies   []float64
	latenciesMu sync.Mutex
	minLatency  atomic.Int64
	maxLatency  atomic.Int64

	limiter   *rate.Limiter
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewRunner creates a load-test runner for config.
func NewRunner(config Config, log zerolog.Logger) *Runner {
	burst := 10
	if config.Rate > 100 {
		burst = int(config.Rate / 10)
	}
	if burst > 100 {
		burst = 100
	}

	maxConcurrent := 10000
	if config.Readers > 10000 {
		maxConcurrent = config.Readers / 10
		if maxConcurrent > 50000 {
			maxConcurrent = 50000
		}
	}

	r := &Runner{
		config:    config,
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(config.Rate), burst),
		semaphore: make(chan struct{}, maxConcurrent),
		latencies: make([]float64, 0, 1000),
	}
	r.minLatency.Store(99999999)
	r.maxLatency.Store(0)
	return r
}

// Run executes the load test until ctx is cancelled or Readers connections
// have been spawned and have finished.
func (r *Runner) Run(ctx context.Context) error {
	if r.config.RealWorld {
		sim := NewSimulator(r.config, r.log)
		return sim.Run(ctx)
	}

	r.log.Info().Int("readers", r.config.Readers).Float64("rate", r.config.Rate).Msg("starting load test")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.wg.Add(1)
	go r.spawnConnections(runCtx)

	<-runCtx.Done()

	r.log.Info().Msg("waiting for connections to close")
	r.wg.Wait()
	return nil
}

func (r *Runner) spawnConnections(ctx context.Context) {
	defer r.wg.Done()

	spawned := 0
	lastCheck := time.Now()
	lastFailures := int64(0)

	for spawned < r.config.Readers {
		if ctx.Err() != nil {
			return
		}

		if spawned > 0 && spawned%10 == 0 {
			now := time.Now()
			if now.Sub(lastCheck) > 2*time.Second {
				currentFailures := r.totalFailures.Load()
				delta := currentFailures - lastFailures
				if delta > 2 {
					newRate := r.limiter.Limit() / 2
					if newRate < 1 {
						newRate = 1
					}
					r.limiter.SetLimit(newRate)
					r.log.Warn().Int64("failures", delta).Float64("new_rate", float64(newRate)).Msg("high failure rate, throttling")
				} else if delta == 0 && r.limiter.Limit() < rate.Limit(r.config.Rate) {
					newRate := r.limiter.Limit() * 1.2
					if newRate > rate.Limit(r.config.Rate) {
						newRate = rate.Limit(r.config.Rate)
					}
					r.limiter.SetLimit(newRate)
				}
				lastCheck = now
				lastFailures = currentFailures
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case r.semaphore <- struct{}{}:
		case <-ctx.Done():
			return
		}

		r.wg.Add(1)
		if r.config.IncludeBadClients && rand.Float64() < r.config.BadClientRatio {
			go r.runBadClient(ctx)
		} else {
			go r.runConnection(ctx)
		}

		spawned++
		if spawned%1000 == 0 {
			r.log.Info().Int("spawned", spawned).Msg("progress")
		}
	}

	r.log.Info().Int("spawned", spawned).Msg("finished spawning connections")
}

// runConnection drives one client connection for the configured duration,
// with exponential-backoff retry on connect failure.
func (r *Runner) runConnection(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	const maxRetries = 3
	var client *rtsp.Client
	var connectDuration time.Duration

	for retry := 0; retry < maxRetries; retry++ {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		var err error
		client, err = rtsp.NewClient(r.config.URL, r.config.UseTCP, quietListener{}, r.log)
		if err == nil {
			err = client.Connect()
		}
		if err != nil {
			if retry == maxRetries-1 {
				r.totalFailures.Add(1)
				return
			}
			time.Sleep(time.Duration(100*(1<<retry)) * time.Millisecond)
			continue
		}
		connectDuration = time.Since(start)
		break
	}

	r.recordConnectLatency(connectDuration)
	r.totalConnects.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	timer := time.AfterFunc(r.config.Duration, func() { client.Close() })
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Run(); err != nil {
			r.totalFailures.Add(1)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		client.Close()
		<-done
	}

	stats := client.Stats()
	r.rtpPackets.Add(stats.Packets)
	r.rtpLoss.Add(stats.Lost)
	r.rtpBytes.Add(stats.Bytes)
}

func (r *Runner) recordConnectLatency(d time.Duration) {
	ms := d.Milliseconds()
	r.connectLatency.Add(ms)
	r.connectCount.Add(1)

	for {
		oldMin := r.minLatency.Load()
		if ms >= oldMin || r.minLatency.CompareAndSwap(oldMin, ms) {
			break
		}
	}
	for {
		oldMax := r.maxLatency.Load()
		if ms <= oldMax || r.maxLatency.CompareAndSwap(oldMax, ms) {
			break
		}
	}

	r.latenciesMu.Lock()
	if len(r.latencies) < 10000 {
		r.latencies = append(r.latencies, float64(ms))
	}
	r.latenciesMu.Unlock()
}

// runBadClient drives one misbehaving connection (errors are expected and
// discarded).
func (r *Runner) runBadClient(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	bc := NewBadClient(r.config.URL)

	r.badClients.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	typeName := bc.TypeName()
	if count, ok := r.badClientTypes.Load(typeName); ok {
		r.badClientTypes.Store(typeName, count.(int64)+1)
	} else {
		r.badClientTypes.Store(typeName, int64(1))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()
	_ = bc.Run(runCtx)
}

// GetStats returns the current aggregate statistics.
func (r *Runner) GetStats() Stats {
	var avgConnect float64
	count := r.connectCount.Load()
	if count > 0 {
		avgConnect = float64(r.connectLatency.Load()) / float64(count)
	}

	var p95 float64
	r.latenciesMu.Lock()
	if len(r.latencies) > 0 {
		p95 = percentile(r.latencies, 95)
	}
	r.latenciesMu.Unlock()

	minLat := float64(r.minLatency.Load())
	if minLat == 99999999 {
		minLat = 0
	}

	types := make(map[string]int64)
	r.badClientTypes.Range(func(key, value interface{}) bool {
		types[key.(string)] = value.(int64)
		return true
	})

	return Stats{
		ActiveConnects: r.activeConnects.Load(),
		TotalConnects:  r.totalConnects.Load(),
		TotalFailures:  r.totalFailures.Load(),
		AvgConnectTime: avgConnect,
		MinConnectTime: minLat,
		MaxConnectTime: float64(r.maxLatency.Load()),
		P95ConnectTime: p95,
		RTPPackets:     r.rtpPackets.Load(),
		RTPLoss:        r.rtpLoss.Load(),
		RTPBytes:       r.rtpBytes.Load(),
		BadClients:     r.badClients.Load(),
		BadClientTypes: types,
	}
}

// PrintStats logs a one-line summary of the current statistics.
func (r *Runner) PrintStats() {
	stats := r.GetStats()
	lossRate := float64(0)
	if stats.RTPPackets > 0 {
		lossRate = float64(stats.RTPLoss) * 100.0 / float64(stats.RTPPackets+stats.RTPLoss)
	}
	r.log.Info().
		Int64("active", stats.ActiveConnects).
		Int64("total", stats.TotalConnects).
		Int64("failed", stats.TotalFailures).
		Float64("avg_connect_ms", stats.AvgConnectTime).
		Uint64("packets", stats.RTPPackets).
		Float64("loss_pct", lossRate).
		Msg("load test status")
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := (p / 100) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
