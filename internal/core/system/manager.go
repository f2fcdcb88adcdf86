package system

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zeusync/salvo/internal/core/observability/log"
)

var ErrInvalidStep = errors.New("system: tick step must be positive")

// Ticker is advanced by the loop once per fixed step.
type Ticker interface {
	Tick(dt float64)
}

// TickerFunc adapts a function to Ticker.
type TickerFunc func(dt float64)

func (f TickerFunc) Tick(dt float64) { f(dt) }

// LoopMetrics is a snapshot of loop timing.
type LoopMetrics struct {
	Frames          uint64
	SimulatedTime   time.Duration
	LastTickTime    time.Duration
	AverageTickTime time.Duration
	LastTick        time.Time
}

// Loop drives tickers at a fixed step. Every frame runs under lock so that
// tick callbacks never race with other holders of the same lock.
type Loop struct {
	step   time.Duration
	lock   sync.Locker
	logger log.Log

	mu        sync.Mutex
	tickers   []Ticker
	metrics   LoopMetrics
	totalTime time.Duration
}

// NewLoop builds a loop. A nil lock gets a private mutex.
func NewLoop(step time.Duration, lock sync.Locker, logger log.Log) (*Loop, error) {
	if step <= 0 {
		return nil, ErrInvalidStep
	}
	if lock == nil {
		lock = &sync.Mutex{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Loop{
		step:   step,
		lock:   lock,
		logger: logger.With(log.String("component", "loop")),
	}, nil
}

func (l *Loop) Register(t Ticker) {
	l.mu.Lock()
	l.tickers = append(l.tickers, t)
	l.mu.Unlock()
}

func (l *Loop) Step() time.Duration { return l.step }

// Run ticks until ctx is cancelled. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()

	l.logger.Info("Tick loop started", log.Duration("step", l.step))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Tick loop stopped", log.Uint64("frames", l.Metrics().Frames))
			return nil
		case <-ticker.C:
			l.Advance()
		}
	}
}

// Advance runs a single frame synchronously.
func (l *Loop) Advance() {
	l.mu.Lock()
	tickers := make([]Ticker, len(l.tickers))
	copy(tickers, l.tickers)
	l.mu.Unlock()

	dt := l.step.Seconds()
	start := time.Now()

	l.lock.Lock()
	for _, t := range tickers {
		t.Tick(dt)
	}
	l.lock.Unlock()

	elapsed := time.Since(start)

	l.mu.Lock()
	l.metrics.Frames++
	l.metrics.SimulatedTime += l.step
	l.metrics.LastTickTime = elapsed
	l.metrics.LastTick = start
	l.totalTime += elapsed
	l.metrics.AverageTickTime = l.totalTime / time.Duration(l.metrics.Frames)
	l.mu.Unlock()
}

func (l *Loop) Metrics() LoopMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}
