package hdfstypes

import "sync"

// Progress aggregates per-path transfer progress across concurrent
// workers. It is safe for concurrent use without external locking and its
// Update method satisfies ProgressFunc, so it can be handed directly to
// Upload and Download.
type Progress struct {
	mu        sync.Mutex
	live      map[string]int64
	liveBytes int64
	doneBytes int64
	completed int
}

// NewProgress returns an empty aggregator.
func NewProgress() *Progress {
	return &Progress{live: make(map[string]int64)}
}

// Update merges one progress event. A non-negative count replaces the
// path's running byte count; -1 finalizes the path and removes it from
// the live set.
func (p *Progress) Update(path string, bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bytes < 0 {
		p.doneBytes += p.live[path]
		p.liveBytes -= p.live[path]
		delete(p.live, path)
		p.completed++
		return
	}
	p.liveBytes += bytes - p.live[path]
	p.live[path] = bytes
}

// TotalBytes returns the running byte total across finished and in-flight
// paths at this instant.
func (p *Progress) TotalBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneBytes + p.liveBytes
}

// Live returns a snapshot of the in-flight paths and their byte counts.
func (p *Progress) Live() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make(map[string]int64, len(p.live))
	for path, bytes := range p.live {
		snapshot[path] = bytes
	}
	return snapshot
}

// Completed returns how many paths have received their terminal event.
func (p *Progress) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}
