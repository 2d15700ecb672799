package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator hands out predictable run identifiers.
//
// With a non-empty prefix it returns "<prefix>-1", "<prefix>-2", ...
// so staging directories and history rows can be asserted exactly.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDGenerator creates a generator. An empty prefix defaults to "run".
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next identifier.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
