package utils

import (
	"math/rand"
	"sync"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
)

// SaltGenerator hands out handshake salts. The salts only guard against
// spoofed source addresses, so a seeded math/rand source is enough.
type SaltGenerator struct {
	mut sync.Mutex
	gen *rand.Rand
}

func CreateSaltGenerator(seed int64) *SaltGenerator {
	return &SaltGenerator{
		gen: rand.New(rand.NewSource(seed)),
	}
}

// NewSalt never returns the zero salt, which marks an unauthenticated session.
func (g *SaltGenerator) NewSalt() packet.Salt {
	g.mut.Lock()
	defer g.mut.Unlock()

	var s packet.Salt
	for s.IsZero() {
		g.gen.Read(s[:])
	}
	return s
}

func Contains[T comparable](needle T, haystack []T) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
