// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/winkstreaming/rtspstack/internal/rtsp"
)

// Simulator drives a realistic traffic pattern against a target rather than
// a fixed connect rate: connection count tracks a simulated time-of-day
// curve, with individual sessions joining and leaving at randomized
// intervals.
type Simulator struct {
	config Config
	log    zerolog.Logger

	activeConnects atomic.Int64
	totalConnects  atomic.Int64
	totalFailures  atomic.Int64
	targetConnects atomic.Int64
	rtpPackets     atomic.Uint64
	rtpLoss        atomic.Uint64
	rtpBytes       atomic.Uint64

	connections map[string]*simConnection
	connMu      sync.RWMutex
	wg          sync.WaitGroup
}

// simConnection tracks one simulated session's lifecycle.
type simConnection struct {
	id        string
	startTime time.Time
	client    *rtsp.Client
	cancel    context.CancelFunc
}

// NewSimulator creates a real-world traffic simulator for config.
func NewSimulator(config Config, log zerolog.Logger) *Simulator {
	return &Simulator{
		config:      config,
		log:         log,
		connections: make(map[string]*simConnection),
	}
}

// Run executes the simulation until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.log.Info().
		Int("avg_connections", s.config.AvgConnections).
		Float64("variance", s.config.Variance).
		Msg("starting real-world simulation")

	s.wg.Add(1)
	go s.generateLoadPattern(ctx)

	s.wg.Add(1)
	go s.manageConnections(ctx)

	<-ctx.Done()

	s.log.Info().Msg("shutting down simulation")
	s.wg.Wait()
	return nil
}

func (s *Simulator) generateLoadPattern(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	s.targetConnects.Store(int64(s.config.AvgConnections))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.adjustTargetLoad()
		}
	}
}

// adjustTargetLoad recomputes the target connection count from a simulated
// daily traffic curve plus random jitter.
func (s *Simulator) adjustTargetLoad() {
	avg := float64(s.config.AvgConnections)
	variance := s.config.Variance

	hour := time.Now().Hour()
	var dayFactor float64
	switch {
	case hour >= 9 && hour <= 11:
		dayFactor = 1.2 // morning peak
	case hour >= 12 && hour <= 13:
		dayFactor = 0.9 // lunch dip
	case hour >= 14 && hour <= 17:
		dayFactor = 1.1 // afternoon steady
	case hour >= 18 && hour <= 22:
		dayFactor = 1.3 // evening peak
	case hour >= 23 || hour <= 5:
		dayFactor = 0.6 // night low
	default:
		dayFactor = 0.8
	}

	randomFactor := 1.0 + (rand.Float64()-0.5)*variance
	newTarget := int64(avg * dayFactor * randomFactor)

	minTarget := int64(avg * (1 - variance))
	maxTarget := int64(avg * (1 + variance))
	if newTarget < minTarget {
		newTarget = minTarget
	}
	if newTarget > maxTarget {
		newTarget = maxTarget
	}

	s.targetConnects.Store(newTarget)
	s.log.Debug().Int64("target", newTarget).Int64("active", s.activeConnects.Load()).Msg("load adjustment")
}

func (s *Simulator) manageConnections(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAllConnections()
			return
		case <-ticker.C:
			s.adjustConnections(ctx)
		}
	}
}

func (s *Simulator) adjustConnections(ctx context.Context) {
	current := s.activeConnects.Load()
	target := s.targetConnects.Load()
	diff := target - current

	if diff > 0 {
		toAdd := diff
		if toAdd > 50 {
			toAdd = 50
		}
		for i := int64(0); i < toAdd; i++ {
			s.wg.Add(1)
			go s.addConnection(ctx)
		}
	} else if diff < 0 {
		toRemove := -diff
		if toRemove > 20 {
			toRemove = 20
		}
		s.removeConnections(toRemove)
	}
}

func (s *Simulator) addConnection(ctx context.Context) {
	defer s.wg.Done()

	connID := fmt.Sprintf("conn-%d-%d", time.Now().UnixNano(), rand.Int())

	client, err := rtsp.NewClient(s.config.URL, s.config.UseTCP, quietListener{}, s.log)
	if err != nil {
		s.totalFailures.Add(1)
		return
	}
	if err := client.Connect(); err != nil {
		s.totalFailures.Add(1)
		return
	}

	s.totalConnects.Add(1)
	s.activeConnects.Add(1)
	defer s.activeConnects.Add(-1)

	minDuration := 30 * time.Second
	maxDuration := s.config.Duration
	if maxDuration <= minDuration {
		maxDuration = 5 * time.Minute
	}
	durationRange := maxDuration - minDuration
	if durationRange <= 0 {
		durationRange = 4*time.Minute + 30*time.Second
	}
	duration := minDuration + time.Duration(rand.Int63n(int64(durationRange)))

	connCtx, cancel := context.WithTimeout(ctx, duration)
	conn := &simConnection{id: connID, startTime: time.Now(), client: client, cancel: cancel}

	s.connMu.Lock()
	s.connections[connID] = conn
	s.connMu.Unlock()

	timer := time.AfterFunc(duration, func() { client.Close() })
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Run(); err != nil {
			s.totalFailures.Add(1)
		}
	}()

	select {
	case <-done:
	case <-connCtx.Done():
		client.Close()
		<-done
	}
	cancel()

	stats := client.Stats()
	s.rtpPackets.Add(stats.Packets)
	s.rtpLoss.Add(stats.Lost)
	s.rtpBytes.Add(stats.Bytes)

	s.connMu.Lock()
	delete(s.connections, connID)
	s.connMu.Unlock()
}

func (s *Simulator) removeConnections(count int64) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	removed := int64(0)
	for id, conn := range s.connections {
		if removed >= count {
			break
		}
		conn.cancel()
		delete(s.connections, id)
		removed++
	}
}

func (s *Simulator) closeAllConnections() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for _, conn := range s.connections {
		conn.cancel()
	}
	s.connections = make(map[string]*simConnection)
}

// GetStats returns the current aggregate statistics.
func (s *Simulator) GetStats() Stats {
	return Stats{
		ActiveConnects: s.activeConnects.Load(),
		TotalConnects:  s.totalConnects.Load(),
		TotalFailures:  s.totalFailures.Load(),
		TargetConnects: s.targetConnects.Load(),
		RTPPackets:     s.rtpPackets.Load(),
		RTPLoss:        s.rtpLoss.Load(),
		RTPBytes:       s.rtpBytes.Load(),
	}
}

// LoadPattern identifies a synthetic traffic shape for GeneratePattern.
type LoadPattern int

const (
	PatternSteady LoadPattern = iota
	PatternPeak
	PatternValley
	PatternSpike
	PatternGradual
)

// GeneratePattern computes a connection-count target for pattern given a
// baseline and amplitude, for driving deterministic load-shape tests.
func GeneratePattern(pattern LoadPattern, base int, amplitude float64) int {
	switch pattern {
	case PatternPeak:
		return base + int(float64(base)*amplitude)
	case PatternValley:
		return base - int(float64(base)*amplitude)
	case PatternSpike:
		if rand.Float64() < 0.1 {
			return base * 2
		}
		return base
	case PatternGradual:
		t := float64(time.Now().Unix())
		return base + int(float64(base)*amplitude*math.Sin(t/300))
	default:
		return base
	}
}
