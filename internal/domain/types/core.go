package types

import "fmt"

// UserID identifies an account in the shared document store.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one device of an account. Only a single device per
// account is supported, so every address carries DefaultDeviceID.
type DeviceID uint32

// DefaultDeviceID is the device id used for every account.
const DefaultDeviceID DeviceID = 1

// Address names one device of a peer. Sessions and pinned identities are
// keyed by address.
type Address struct {
	Name     UserID   `json:"name"`
	DeviceID DeviceID `json:"device_id"`
}

// NewAddress returns the address of user's only device.
func NewAddress(user UserID) Address {
	return Address{Name: user, DeviceID: DefaultDeviceID}
}

// String renders the address as "<name>.<device>".
func (a Address) String() string { return fmt.Sprintf("%s.%d", a.Name, a.DeviceID) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// RegistrationID is the random 31-bit value generated once per install.
type RegistrationID uint32

// PreKeyID identifies a one-time prekey.
type PreKeyID uint32

// SignedPreKeyID identifies a signed prekey.
type SignedPreKeyID uint32

// Direction tells an identity trust check whether the key is being used to
// send to or receive from the peer.
type Direction int

const (
	Sending Direction = iota
	Receiving
)
