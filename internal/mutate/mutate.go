// Package mutate defines the mutation-strategy contract the selector and
// fuzzer loop depend on, plus a small registry and a handful of reference
// strategies that operate directly on artifact bytes.
package mutate

import (
	"fmt"
	"math/rand"
)

// Strategy is an external collaborator contract: something that can turn one
// artifact into a related but different one. Real strategies (bytecode/IR
// tree-edit operators) live outside this repo; the reference strategies here
// are a byte-level stand-in sufficient to drive the loop end-to-end.
type Strategy interface {
	Name() string
	Apply(artifact []byte, rng *rand.Rand) ([]byte, error)
}

// Registry holds the set of known strategies, keyed by name.
type Registry struct {
	strategies map[string]Strategy
	order      []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds a strategy. Registering the same name twice overwrites the
// previous entry but does not duplicate it in Names().
func (r *Registry) Register(s Strategy) {
	if _, exists := r.strategies[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.strategies[s.Name()] = s
}

// Get looks up a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered strategy names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// NewDefaultRegistry returns a registry with the three reference strategies
// registered: bitflip, byteinsert, byteshuffle.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BitFlip{})
	r.Register(ByteInsert{})
	r.Register(ByteShuffle{})
	return r
}

// BitFlip flips a single random bit in the artifact.
type BitFlip struct{}

func (BitFlip) Name() string { return "bitflip" }

func (BitFlip) Apply(artifact []byte, rng *rand.Rand) ([]byte, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("bitflip: empty artifact")
	}
	out := make([]byte, len(artifact))
	copy(out, artifact)
	byteIdx := rng.Intn(len(out))
	bitIdx := rng.Intn(8)
	out[byteIdx] ^= 1 << bitIdx
	return out, nil
}

// ByteInsert inserts a random byte at a random position.
type ByteInsert struct{}

func (ByteInsert) Name() string { return "byteinsert" }

func (ByteInsert) Apply(artifact []byte, rng *rand.Rand) ([]byte, error) {
	pos := 0
	if len(artifact) > 0 {
		pos = rng.Intn(len(artifact) + 1)
	}
	out := make([]byte, 0, len(artifact)+1)
	out = append(out, artifact[:pos]...)
	out = append(out, byte(rng.Intn(256)))
	out = append(out, artifact[pos:]...)
	return out, nil
}

// ByteShuffle swaps two random byte positions.
type ByteShuffle struct{}

func (ByteShuffle) Name() string { return "byteshuffle" }

func (ByteShuffle) Apply(artifact []byte, rng *rand.Rand) ([]byte, error) {
	if len(artifact) < 2 {
		return nil, fmt.Errorf("byteshuffle: artifact too short")
	}
	out := make([]byte, len(artifact))
	copy(out, artifact)
	i := rng.Intn(len(out))
	j := rng.Intn(len(out))
	out[i], out[j] = out[j], out[i]
	return out, nil
}
