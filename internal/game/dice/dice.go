// Package dice provides the randomness abstraction used to place the shared
// token and its target on the grid.
package dice

// Source is the randomness provider for position sampling.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}
