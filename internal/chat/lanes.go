package chat

import (
	"hash/fnv"
	"log"
	"sync"
)

// Lanes runs submitted work on a fixed set of goroutines. Work submitted under
// the same key always lands on the same lane and runs in submission order;
// different keys may run in parallel.
type Lanes struct {
	mu     sync.RWMutex
	queues []chan func()
	closed bool
	wg     sync.WaitGroup
}

// NewLanes starts n lanes, each buffering up to depth pending tasks. Submit
// blocks while the target lane is full.
func NewLanes(n, depth int) *Lanes {
	if n <= 0 {
		n = 1
	}
	if depth <= 0 {
		depth = 1
	}

	l := &Lanes{queues: make([]chan func(), n)}
	for i := range l.queues {
		q := make(chan func(), depth)
		l.queues[i] = q
		l.wg.Add(1)
		go l.run(q)
	}
	return l
}

func (l *Lanes) run(q chan func()) {
	defer l.wg.Done()
	for fn := range q {
		l.exec(fn)
	}
}

func (l *Lanes) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[chat] lane task panicked: %v", r)
		}
	}()
	fn()
}

// Submit queues fn on the lane owning key. It returns false if the lanes are
// closed, in which case fn never runs.
func (l *Lanes) Submit(key string, fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return false
	}
	l.queues[l.index(key)] <- fn
	return true
}

func (l *Lanes) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.queues)))
}

// Close stops accepting work, runs everything already queued and waits for
// the lanes to exit.
func (l *Lanes) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for _, q := range l.queues {
		close(q)
	}
	l.mu.Unlock()

	l.wg.Wait()
}
