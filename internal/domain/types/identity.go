package types

// IdentityKeyPair is the long-term identity of this device: an X25519 pair
// for key agreement and an Ed25519 pair for signing prekeys.
type IdentityKeyPair struct {
	XPub   X25519Public   `json:"x_pub"`
	XPriv  X25519Private  `json:"x_priv"`
	EdPub  Ed25519Public  `json:"ed_pub"`
	EdPriv Ed25519Private `json:"ed_priv"`
}

// Public returns the publishable half of the identity.
func (id IdentityKeyPair) Public() IdentityPublicKey {
	return IdentityPublicKey{DH: id.XPub, Signing: id.EdPub}
}
