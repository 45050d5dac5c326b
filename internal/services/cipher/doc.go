// Package cipher converts between plaintext and the transport form of an
// envelope, base64 of {"type","body"}, on top of the session manager.
package cipher
