// Package memzero provides best-effort wiping of sensitive byte slices.
package memzero

import "runtime"

// Zero overwrites b with zeros. Best-effort: the noinline directive and
// KeepAlive reduce the chance of the compiler eliding the writes.
//
//go:noinline
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

// Zero32 wipes a fixed-size key array in place.
//
//go:noinline
func Zero32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
