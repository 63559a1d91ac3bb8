// Package ratelimit implements the moving-window admission limiter used
// once per provider by the HTTP Request Executor.
//
// Unlike golang.org/x/time/rate's token-bucket limiter, this type tracks
// the exact timestamps of recent admissions and reports how long a
// caller had to wait, which the API Orchestrator's stats surface and
// property P5 both depend on.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Limiter admits at most RequestsPerWindow calls in any trailing window
// of WindowSeconds.
type Limiter struct {
	requestsPerWindow int
	window            time.Duration

	mu        sync.Mutex
	admitted  []time.Time
	totalReqs int64
	totalWait time.Duration

	logger *log.Logger
}

// New constructs a Limiter. It rejects non-positive configuration
// rather than silently disabling the limit.
func New(name string, requestsPerWindow int, windowSeconds float64) (*Limiter, error) {
	if requestsPerWindow <= 0 {
		return nil, fmt.Errorf("ratelimit: requests_per_window must be positive, got %d", requestsPerWindow)
	}
	if windowSeconds <= 0 {
		return nil, fmt.Errorf("ratelimit: window_seconds must be positive, got %f", windowSeconds)
	}
	return &Limiter{
		requestsPerWindow: requestsPerWindow,
		window:            time.Duration(windowSeconds * float64(time.Second)),
		admitted:          make([]time.Time, 0, requestsPerWindow),
		logger:            log.New(os.Stdout, fmt.Sprintf("ratelimit[%s]: ", name), log.LstdFlags|log.Lmsgprefix),
	}, nil
}

// Acquire blocks (cooperatively, respecting ctx) until admission is
// granted, then returns how long it waited. The whole
// prune-check-admit-sleep-readmit sequence holds the limiter's mutex so
// concurrent callers are served FIFO.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	waited := time.Duration(0)

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := time.Now()
		l.prune(now)

		if len(l.admitted) < l.requestsPerWindow {
			l.admitted = append(l.admitted, now)
			l.totalReqs++
			l.totalWait += waited
			return waited, nil
		}

		oldest := l.admitted[0]
		wait := oldest.Add(l.window).Sub(now) + time.Millisecond

		if wait > 15*time.Second {
			l.logger.Printf("long rate-limit wait: %s", wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
			waited += wait
		}
	}
}

// Release is a no-op, present for symmetry with callers that abort
// mid-acquire.
func (l *Limiter) Release() {}

// prune drops timestamps older than now-window. Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admitted) && l.admitted[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[i:]...)
	}
}

// Stats is a snapshot of the limiter's configuration and cumulative
// usage, exposed via the reporting HTTP surface.
type Stats struct {
	RequestsPerWindow int
	WindowSeconds     float64
	CurrentInWindow   int
	TotalRequests     int64
	TotalWait         time.Duration
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(time.Now())
	return Stats{
		RequestsPerWindow: l.requestsPerWindow,
		WindowSeconds:     l.window.Seconds(),
		CurrentInWindow:   len(l.admitted),
		TotalRequests:     l.totalReqs,
		TotalWait:         l.totalWait,
	}
}
