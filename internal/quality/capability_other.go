//go:build !linux

package quality

// totalMemoryBytes has no portable implementation off Linux; callers fall
// back to the heuristic path with reduced confidence.
func totalMemoryBytes() (uint64, bool) {
	return 0, false
}
