// Package prekey keeps the published prekey supply healthy.
//
// It replenishes one-time prekeys as peers claim them, rotates the signed
// prekey while retaining recent ones for in-flight handshakes, and can
// rebuild the published bundle from local state.
package prekey
