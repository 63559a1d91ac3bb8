package batch

import (
	"log"
	"sync"
)

// Progress is the thread-safe completion counter the Batch Processor needs for
// concurrent mode: a mutex-guarded count, logging every
// max(1, total/10) completions so a long run still reports periodically.
type Progress struct {
	mu        sync.Mutex
	completed int
	total     int
	logEvery  int
	logger    *log.Logger
}

// NewProgress builds a counter for a run of total albums.
func NewProgress(total int, logger *log.Logger) *Progress {
	logEvery := total / 10
	if logEvery < 1 {
		logEvery = 1
	}
	return &Progress{total: total, logEvery: logEvery, logger: logger}
}

// Increment records one more completed album and logs progress when the
// completion count crosses a logEvery boundary.
func (p *Progress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.completed%p.logEvery == 0 || p.completed == p.total {
		p.logger.Printf("progress: %d/%d albums processed", p.completed, p.total)
	}
}

// Completed returns the current count.
func (p *Progress) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}
