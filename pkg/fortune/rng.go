package fortune

import "math/rand"

type globalRNG struct{}

//nolint:gosec // card draws do not need a cryptographic source
func (globalRNG) Intn(n int) int { return rand.Intn(n) }

// DefaultRNG draws from the process-wide math/rand source, which is safe for concurrent use.
//
//nolint:gochecknoglobals // stateless default
var DefaultRNG RNG = globalRNG{}
