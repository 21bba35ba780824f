package masking

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"math/rand/v2"

	"golang.org/x/crypto/hkdf"
)

// SeedSize is the size of a generator seed in bytes.
const SeedSize = 32

// Source draws bounded values. Roles depend on a Source rather than on a
// concrete stream so that tests can script mask values.
type Source interface {
	Draw(r Range) int64
	DrawVector(n int, r Range) Vector
}

// Generator draws bounded masks from a stream it owns.
// A Generator is not safe for concurrent use; every node gets its own.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator over a ChaCha8 stream seeded with seed.
func NewGenerator(seed [SeedSize]byte) *Generator {
	return &Generator{rng: rand.New(rand.NewChaCha8(seed))}
}

// Draw returns a uniformly distributed value in r.
// Panics if r is empty; ranges are validated with the session configuration.
func (g *Generator) Draw(r Range) int64 {
	size := r.Size()
	if size == 0 {
		panic("masking: draw from empty range " + r.String())
	}
	return r.Low + int64(g.rng.Uint64N(size))
}

// DrawVector returns n independent draws from r, in member index order.
func (g *Generator) DrawVector(n int, r Range) Vector {
	v := make(Vector, n)
	for i := range v {
		v[i] = g.Draw(r)
	}
	return v
}

// Float64 returns a uniform value in [0, 1), used for loss and jitter decisions.
func (g *Generator) Float64() float64 {
	return g.rng.Float64()
}

// DeriveSeed derives the stream seed for one node and round from the session seed.
// Different (round, owner) pairs yield independent streams; the same inputs always
// yield the same seed so that a session can be replayed.
func DeriveSeed(sessionSeed []byte, round int, owner string) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if len(sessionSeed) == 0 {
		return seed, errors.New("empty session seed")
	}

	salt := binary.BigEndian.AppendUint64(nil, uint64(round))
	kdf := hkdf.New(sha256.New, sessionSeed, salt, []byte(owner))
	if _, err := io.ReadFull(kdf, seed[:]); err != nil {
		return seed, err
	}

	return seed, nil
}

// NewDerivedGenerator is a shorthand for DeriveSeed followed by NewGenerator.
func NewDerivedGenerator(sessionSeed []byte, round int, owner string) (*Generator, error) {
	seed, err := DeriveSeed(sessionSeed, round, owner)
	if err != nil {
		return nil, err
	}
	return NewGenerator(seed), nil
}
