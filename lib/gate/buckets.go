package gate

import (
	"github.com/ValentinKolb/dDoc/lib/util"
)

// Buckets is a fixed array of gates. A key is always routed to the same
// gate, so unrelated keys rarely contend on the same lock.
type Buckets struct {
	gates []*Gate
	seed  uint64
}

// NewBuckets creates n gates (at least one) configured with opts. The hash
// seed is random per instance.
func NewBuckets(n int, opts ...Option) *Buckets {
	return NewSeededBuckets(n, util.GenerateSeed(), opts...)
}

// NewSeededBuckets is NewBuckets with a custom hash seed.
func NewSeededBuckets(n int, seed uint64, opts ...Option) *Buckets {
	if n < 1 {
		n = 1
	}
	b := &Buckets{gates: make([]*Gate, n), seed: seed}
	for i := range b.gates {
		b.gates[i] = New(opts...)
	}
	return b
}

// Index returns the bucket index of key.
func (b *Buckets) Index(key []byte) int {
	return int(util.HashBytes(key, b.seed) % uint64(len(b.gates)))
}

// For returns the gate responsible for key.
func (b *Buckets) For(key []byte) *Gate {
	return b.gates[b.Index(key)]
}

// At returns the gate at index i.
func (b *Buckets) At(i int) *Gate {
	return b.gates[i]
}

// Len returns the number of buckets.
func (b *Buckets) Len() int {
	return len(b.gates)
}

// Highest returns the maximum of Highest over all buckets.
func (b *Buckets) Highest() uint64 {
	var h uint64
	for _, g := range b.gates {
		h = max(h, g.Highest())
	}
	return h
}

// SignalAll wakes the waiters of every bucket.
func (b *Buckets) SignalAll() {
	for _, g := range b.gates {
		g.SignalAll()
	}
}
