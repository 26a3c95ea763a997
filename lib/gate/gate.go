package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDoc/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("gate")

// ErrGateTimeout is returned when a key stayed busy for longer than the
// timeout passed to RunExclusive.
var ErrGateTimeout = errors.New("gate: timed out waiting for key")

const (
	// DefaultWaitSlice is the longest a waiter sleeps before re-checking its
	// key without being signalled.
	DefaultWaitSlice = 250 * time.Millisecond
	slowWait         = time.Second
)

// Option configures a Gate.
type Option func(*Gate)

// WithWaitSlice sets the re-check interval of waiters.
func WithWaitSlice(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.waitSlice = d
		}
	}
}

// WithWaitObserver registers a callback receiving the time every
// RunExclusive call spent waiting for its key (zero if it did not wait).
func WithWaitObserver(f func(time.Duration)) Option {
	return func(g *Gate) { g.observe = f }
}

// Gate serializes work per key. Bodies for different keys run in parallel;
// bodies for the same key run one at a time. The gate also tracks the
// highest version magnitude it has seen.
//
// The zero value is not usable, create gates with New.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]uint32
	signal   chan struct{} // closed and replaced on every broadcast

	highest   atomic.Uint64
	waitSlice time.Duration
	observe   func(time.Duration)
}

// New creates an empty gate.
func New(opts ...Option) *Gate {
	g := &Gate{
		inFlight:  make(map[string]uint32),
		signal:    make(chan struct{}),
		waitSlice: DefaultWaitSlice,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// --------------------------------------------------------------------------
// Exclusive Execution
// --------------------------------------------------------------------------

// RunExclusive waits until no other body holds key, registers key, runs
// body and returns its error. The registration is removed and waiters are
// woken when body returns or panics.
//
// A positive timeout bounds the total wait and yields ErrGateTimeout; zero
// waits until ctx is done. If ctx ends while waiting, the returned error
// wraps ctx.Err(). In both cases body is not run and nothing stays
// registered.
//
// The key bytes are copied; the caller may reuse the slice.
//
// Thread-safety: This method is thread-safe and is meant to be called from
// many goroutines at once.
func (g *Gate) RunExclusive(ctx context.Context, key []byte, timeout time.Duration, body func() error) error {
	k := string(key)
	if err := g.acquire(ctx, k, timeout); err != nil {
		return err
	}
	defer g.release(k)
	return body()
}

// Run is RunExclusive for bodies that produce a value.
func Run[R any](ctx context.Context, g *Gate, key []byte, timeout time.Duration, body func() (R, error)) (R, error) {
	var out R
	err := g.RunExclusive(ctx, key, timeout, func() error {
		var err error
		out, err = body()
		return err
	})
	return out, err
}

func (g *Gate) acquire(ctx context.Context, key string, timeout time.Duration) error {
	start := time.Now()
	var deadline time.Time
	if timeout > 0 {
		deadline = start.Add(timeout)
	}

	g.mu.Lock()
	for g.inFlight[key] > 0 {
		slice := g.waitSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				g.mu.Unlock()
				return fmt.Errorf("%w %q after %v", ErrGateTimeout, key, timeout)
			}
			slice = min(slice, remaining)
		}
		if err := g.waitLocked(ctx, slice); err != nil {
			g.mu.Unlock()
			return fmt.Errorf("gate: wait for key %q: %w", key, err)
		}
	}
	g.inFlight[key]++
	g.mu.Unlock()

	waited := time.Since(start)
	if waited > slowWait {
		log.Warningf("waited %v for key %q", waited, key)
	}
	if g.observe != nil {
		g.observe(waited)
	}
	return nil
}

func (g *Gate) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.inFlight[key]; n > 1 {
		g.inFlight[key] = n - 1
	} else {
		delete(g.inFlight, key)
	}
	g.broadcastLocked()
}

// waitLocked releases the lock until a broadcast, d elapses or ctx is done,
// then re-acquires it. Only ctx ending is reported as an error.
func (g *Gate) waitLocked(ctx context.Context, d time.Duration) error {
	signal := g.signal
	g.mu.Unlock()
	defer g.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-signal:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) broadcastLocked() {
	close(g.signal)
	g.signal = make(chan struct{})
}

// --------------------------------------------------------------------------
// Signals and Version Tracking
// --------------------------------------------------------------------------

// SignalAll wakes every goroutine waiting on the gate.
func (g *Gate) SignalAll() {
	g.mu.Lock()
	g.broadcastLocked()
	g.mu.Unlock()
}

// AwaitNanos blocks until the next signal, until d elapsed or until ctx is
// done. Only the latter is reported as an error.
func (g *Gate) AwaitNanos(ctx context.Context, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waitLocked(ctx, d)
}

// UpdateHighest raises the tracked maximum to |v| if that is larger.
//
// Thread-safety: This method is lock-free and safe for concurrent use.
func (g *Gate) UpdateHighest(v int64) {
	util.StoreMax(&g.highest, abs(v))
}

// Highest returns the largest version magnitude passed to UpdateHighest.
func (g *Gate) Highest() uint64 {
	return g.highest.Load()
}

// InFlight returns how many bodies currently hold key (0 or 1).
func (g *Gate) InFlight(key []byte) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[string(key)]
}

// Len returns the number of keys currently registered.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

func abs(v int64) uint64 {
	if v < 0 {
		return uint64(^v) + 1
	}
	return uint64(v)
}
