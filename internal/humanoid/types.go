// internal/humanoid/types.go
package humanoid

// Key names a keyboard key in the vocabulary of the input backend (e.g., "e", "w",
// "Return"). The humanoid layer never interprets it.
type Key string

// MouseDelta is a relative pointer movement in backend units.
type MouseDelta struct {
	DX int
	DY int
}
