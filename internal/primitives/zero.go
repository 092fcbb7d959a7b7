package primitives

// Zero overwrites b with zero bytes in place. Every unwrapped content key
// and every plaintext buffer must pass through this on every exit path,
// success or error. It is a best-effort hygiene measure, not a guarantee
// against a GC that has already copied b: Go gives no stronger primitive
// than this without cgo-level memory locking.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
