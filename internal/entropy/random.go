// Package entropy provides the simulation's shared random source: seeded for
// reproducible runs and tests, crypto-seeded otherwise.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand/v2"
	"sync"
)

// Source is a goroutine-safe pseudo-random source. Matching workers and the
// chaos step draw from one Source concurrently.
type Source struct {
	mu   sync.Mutex
	rng  *mrand.Rand
	seed uint64
}

// New returns a source seeded with seed. A zero seed draws one from crypto/rand.
func New(seed uint64) *Source {
	if seed == 0 {
		seed = cryptoSeed()
		slog.Debug("entropy seeded from crypto/rand", "seed", seed)
	}
	return &Source{
		rng:  mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// Seed returns the seed in use, so a run can be replayed.
func (s *Source) Seed() uint64 { return s.seed }

// Intn returns a value in [0, n). n must be positive.
func (s *Source) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Shuffle permutes n elements using swap.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(n, swap)
}

// cryptoSeed reads 64 bits from crypto/rand.
func cryptoSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; any fixed seed still yields a valid run.
		return 0x5eed
	}
	if v := binary.LittleEndian.Uint64(buf[:]); v != 0 {
		return v
	}
	return 1
}
