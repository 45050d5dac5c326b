// Package memzero wipes key material once it is no longer needed.
package memzero

import "runtime"

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// Key wipes a fixed-size key or shared secret in place.
func Key[K ~[32]byte](k *K) {
	var zero K
	*k = zero
	runtime.KeepAlive(k)
}
