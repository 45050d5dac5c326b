package wire

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/madcrx/FADirect/internal/domain"
)

// Version is the only body layout this package reads and writes.
const Version byte = 3

const maxHeaderSize = 0xffff

var (
	// ErrMalformed reports an envelope or body that cannot be parsed.
	ErrMalformed = errors.New("wire: malformed message")
	// ErrVersion reports a body written with an unknown layout version.
	ErrVersion = errors.New("wire: unsupported message version")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// WhisperHeader is the header of an ordinary ratchet message.
type WhisperHeader = domain.RatchetHeader

// PreKeyHeader carries everything a responder needs to build a session,
// followed by the header of the ratchet message it wraps.
type PreKeyHeader struct {
	_              struct{}              `cbor:",toarray"`
	RegistrationID domain.RegistrationID `json:"registration_id"`
	PreKeyID       *domain.PreKeyID      `json:"pre_key_id"`
	SignedPreKeyID domain.SignedPreKeyID `json:"signed_pre_key_id"`
	BaseKey        domain.X25519Public   `json:"base_key"`
	IdentityKey    []byte                `json:"identity_key"`
	Message        domain.RatchetHeader  `json:"message"`
}

// Identity parses the sender identity carried in the header.
func (h PreKeyHeader) Identity() (domain.IdentityPublicKey, error) {
	k, err := domain.ParseIdentityPublicKey(h.IdentityKey)
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return k, nil
}

// MarshalHeader encodes a WhisperHeader or PreKeyHeader deterministically.
func MarshalHeader(h any) ([]byte, error) {
	b, err := encMode.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(b) > maxHeaderSize {
		return nil, fmt.Errorf("wire: header of %d bytes exceeds %d", len(b), maxHeaderSize)
	}
	return b, nil
}

// UnmarshalWhisperHeader decodes the header of an ordinary message.
func UnmarshalWhisperHeader(b []byte) (WhisperHeader, error) {
	var h WhisperHeader
	if err := decMode.Unmarshal(b, &h); err != nil {
		return h, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return h, nil
}

// UnmarshalPreKeyHeader decodes the header of a session-bootstrapping message.
func UnmarshalPreKeyHeader(b []byte) (PreKeyHeader, error) {
	var h PreKeyHeader
	if err := decMode.Unmarshal(b, &h); err != nil {
		return h, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(h.IdentityKey) != domain.IdentityPublicKeySize {
		return h, fmt.Errorf("%w: identity key of %d bytes", ErrMalformed, len(h.IdentityKey))
	}
	return h, nil
}

// PackBody lays out version || uint16 header length || header || sealed.
func PackBody(header, sealed []byte) ([]byte, error) {
	if len(header) > maxHeaderSize {
		return nil, fmt.Errorf("wire: header of %d bytes exceeds %d", len(header), maxHeaderSize)
	}
	body := make([]byte, 0, 3+len(header)+len(sealed))
	body = append(body, Version)
	body = binary.BigEndian.AppendUint16(body, uint16(len(header)))
	body = append(body, header...)
	return append(body, sealed...), nil
}

// UnpackBody splits a body produced by PackBody. The returned slices alias body.
func UnpackBody(body []byte) (header, sealed []byte, err error) {
	if len(body) < 3 {
		return nil, nil, ErrMalformed
	}
	if body[0] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrVersion, body[0])
	}
	n := int(binary.BigEndian.Uint16(body[1:3]))
	if len(body) < 3+n {
		return nil, nil, ErrMalformed
	}
	return body[3 : 3+n], body[3+n:], nil
}

// EncodeEnvelope renders env as base64(JSON{"type","body"}).
func EncodeEnvelope(env domain.Envelope) (string, error) {
	if env.Type != domain.EnvelopePreKey && env.Type != domain.EnvelopeWhisper {
		return "", fmt.Errorf("wire: unknown envelope type %d", env.Type)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeEnvelope parses the output of EncodeEnvelope.
func DecodeEnvelope(s string) (domain.Envelope, error) {
	var env domain.Envelope
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return env, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Type != domain.EnvelopePreKey && env.Type != domain.EnvelopeWhisper {
		return env, fmt.Errorf("%w: unknown envelope type %d", ErrMalformed, env.Type)
	}
	return env, nil
}
