package types

import "time"

// PendingPreKey records what an initiator used from the peer's bundle. It is
// repeated in every outgoing message until the peer replies.
type PendingPreKey struct {
	PreKeyID       *PreKeyID      `json:"pre_key_id,omitempty"`
	SignedPreKeyID SignedPreKeyID `json:"signed_pre_key_id"`
	BaseKey        X25519Public   `json:"base_key"`
}

// Session is the persisted state of a pairwise conversation with one address.
type Session struct {
	LocalIdentity        IdentityPublicKey `json:"local_identity"`
	RemoteIdentity       IdentityPublicKey `json:"remote_identity"`
	RemoteRegistrationID RegistrationID    `json:"remote_registration_id"`
	LocalRegistrationID  RegistrationID    `json:"local_registration_id"`
	AssociatedData       []byte            `json:"ad"`
	BaseKey              X25519Public      `json:"base_key"`
	Initiator            bool              `json:"initiator"`
	PendingPreKey        *PendingPreKey    `json:"pending_pre_key,omitempty"`
	State                RatchetState      `json:"state"`
	CreatedAt            time.Time         `json:"created_at"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.AssociatedData = cloneBytes(s.AssociatedData)
	out.State = s.State.Clone()
	if s.PendingPreKey != nil {
		p := *s.PendingPreKey
		if p.PreKeyID != nil {
			id := *p.PreKeyID
			p.PreKeyID = &id
		}
		out.PendingPreKey = &p
	}
	return out
}
