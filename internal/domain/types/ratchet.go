package types

// RatchetHeader is sent alongside every ciphertext.
type RatchetHeader struct {
	_     struct{}     `cbor:",toarray"`
	DHPub X25519Public `json:"dh_pub"`
	PN    uint32       `json:"pn"`
	N     uint32       `json:"n"`
}

// SkippedKey is a message key held back for a message that has not arrived yet.
type SkippedKey struct {
	DHPub X25519Public `json:"dh_pub"`
	N     uint32       `json:"n"`
	Key   []byte       `json:"mk"`
}

// RatchetState contains all fields the Double Ratchet needs to track.
type RatchetState struct {
	RootKey   []byte        `json:"root_key"`
	DHPriv    X25519Private `json:"dh_priv"`
	DHPub     X25519Public  `json:"dh_pub"`
	PeerDHPub X25519Public  `json:"peer_dh_pub"`
	SendCK    []byte        `json:"send_ck,omitempty"`
	RecvCK    []byte        `json:"recv_ck,omitempty"`
	Ns        uint32        `json:"ns"`
	Nr        uint32        `json:"nr"`
	PN        uint32        `json:"pn"`
	Skipped   []SkippedKey  `json:"skipped,omitempty"`
}

// Clone returns a deep copy so a failed operation can be discarded.
func (s RatchetState) Clone() RatchetState {
	out := s
	out.RootKey = cloneBytes(s.RootKey)
	out.SendCK = cloneBytes(s.SendCK)
	out.RecvCK = cloneBytes(s.RecvCK)
	if s.Skipped != nil {
		out.Skipped = make([]SkippedKey, len(s.Skipped))
		for i, k := range s.Skipped {
			out.Skipped[i] = SkippedKey{DHPub: k.DHPub, N: k.N, Key: cloneBytes(k.Key)}
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
