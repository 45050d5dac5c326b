package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/protocol/ratchet"
	"github.com/madcrx/FADirect/internal/protocol/wire"
	"github.com/madcrx/FADirect/internal/protocol/x3dh"
	"github.com/madcrx/FADirect/internal/util/memzero"
)

// Service implements domain.SessionManager over the local KeyStore and the
// published bundle directory.
type Service struct {
	keys  domain.KeyStore
	dir   domain.BundleDirectory
	log   *zap.SugaredLogger
	locks *xsync.Map[string, *sync.Mutex]
	now   func() time.Time
}

// New constructs a session manager.
func New(keys domain.KeyStore, dir domain.BundleDirectory, log *zap.SugaredLogger) *Service {
	return &Service{
		keys:  keys,
		dir:   dir,
		log:   log,
		locks: xsync.NewMap[string, *sync.Mutex](),
		now:   time.Now,
	}
}

// lock serialises every operation on addr.
func (s *Service) lock(addr domain.Address) (unlock func()) {
	mu, _ := s.locks.LoadOrStore(addr.String(), &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

// HasSession reports whether a session with peer exists.
func (s *Service) HasSession(_ context.Context, peer domain.UserID) (bool, error) {
	_, ok, err := s.keys.LoadSession(domain.NewAddress(peer))
	return ok, err
}

// Encrypt seals plaintext for peer, bootstrapping a session from the peer's
// published bundle on first contact. The advanced ratchet state is stored
// only after deliver returns nil; a failed deliver, or a ctx already done
// before delivery, leaves the stored state untouched. A nil deliver stores
// immediately.
func (s *Service) Encrypt(
	ctx context.Context,
	peer domain.UserID,
	plaintext []byte,
	deliver domain.DeliverFunc,
) (domain.Envelope, error) {
	addr := domain.NewAddress(peer)
	unlock := s.lock(addr)
	defer unlock()

	sess, ok, err := s.keys.LoadSession(addr)
	if err != nil {
		return domain.Envelope{}, err
	}
	if !ok {
		if sess, err = s.initiate(ctx, addr); err != nil {
			return domain.Envelope{}, err
		}
	}

	work := sess.Clone()
	env, err := seal(&work, plaintext)
	if err != nil {
		return domain.Envelope{}, err
	}
	if deliver != nil {
		if err := ctx.Err(); err != nil {
			return domain.Envelope{}, err
		}
		if err := deliver(ctx, env); err != nil {
			return domain.Envelope{}, err
		}
	}
	// Once deliver succeeded the peer may hold the message, so the advance
	// is kept even if ctx ended meanwhile.
	if err := s.keys.StoreSession(addr, work); err != nil {
		return domain.Envelope{}, err
	}
	s.log.Debugf("sent %s message %d to %s", env.Type, work.State.Ns-1, addr)
	return env, nil
}

// initiate runs X3DH against the peer's bundle and stores the new session
// with its pending prekey information.
func (s *Service) initiate(ctx context.Context, addr domain.Address) (domain.Session, error) {
	bundle, err := s.dir.Fetch(ctx, addr.Name)
	if err != nil {
		return domain.Session{}, err
	}
	if !x3dh.VerifySignedPreKey(bundle.IdentityKey, bundle.SignedPreKey) {
		return domain.Session{}, fmt.Errorf("bundle of %s: %w", addr.Name, domain.ErrInvalidSignature)
	}
	trusted, err := s.keys.IsTrustedIdentity(addr, bundle.IdentityKey, domain.Sending)
	if err != nil {
		return domain.Session{}, err
	}
	if !trusted {
		return domain.Session{}, fmt.Errorf("%s: %w", addr, domain.ErrUntrustedIdentity)
	}

	id, err := s.keys.IdentityKeyPair()
	if err != nil {
		return domain.Session{}, err
	}
	regID, err := s.keys.LocalRegistrationID()
	if err != nil {
		return domain.Session{}, err
	}

	res, err := x3dh.Initiate(id, bundle)
	if err != nil {
		return domain.Session{}, err
	}
	defer memzero.Zero(res.SharedKey)
	st, err := ratchet.InitAsInitiator(res.SharedKey, bundle.SignedPreKey.Public)
	if err != nil {
		return domain.Session{}, err
	}

	sess := domain.Session{
		LocalIdentity:        id.Public(),
		RemoteIdentity:       bundle.IdentityKey,
		RemoteRegistrationID: bundle.RegistrationID,
		LocalRegistrationID:  regID,
		AssociatedData:       res.AssociatedData,
		BaseKey:              res.BaseKey,
		Initiator:            true,
		PendingPreKey: &domain.PendingPreKey{
			PreKeyID:       res.PreKeyID,
			SignedPreKeyID: res.SignedPreKeyID,
			BaseKey:        res.BaseKey,
		},
		State:     st,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keys.StoreSession(addr, sess); err != nil {
		return domain.Session{}, err
	}
	if _, err := s.keys.SaveIdentity(addr, bundle.IdentityKey); err != nil {
		return domain.Session{}, err
	}
	if res.PreKeyID != nil {
		s.log.Debugf("initiated session with %s using one-time prekey %d", addr, *res.PreKeyID)
	} else {
		s.log.Debugf("initiated session with %s without a one-time prekey", addr)
	}
	return sess, nil
}

// seal encrypts with sess's ratchet and frames the result. It advances
// sess in place.
func seal(sess *domain.Session, plaintext []byte) (domain.Envelope, error) {
	typ := domain.EnvelopeWhisper
	encode := func(h domain.RatchetHeader) ([]byte, error) { return wire.MarshalHeader(h) }
	if p := sess.PendingPreKey; p != nil {
		typ = domain.EnvelopePreKey
		encode = func(h domain.RatchetHeader) ([]byte, error) {
			return wire.MarshalHeader(wire.PreKeyHeader{
				RegistrationID: sess.LocalRegistrationID,
				PreKeyID:       p.PreKeyID,
				SignedPreKeyID: p.SignedPreKeyID,
				BaseKey:        p.BaseKey,
				IdentityKey:    sess.LocalIdentity.Bytes(),
				Message:        h,
			})
		}
	}

	header, ct, err := ratchet.Encrypt(&sess.State, sess.AssociatedData, plaintext, encode)
	if err != nil {
		return domain.Envelope{}, err
	}
	body, err := wire.PackBody(header, ct)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Type: typ, Body: body}, nil
}

// Decrypt opens an envelope from peer. A PREKEY envelope without a matching
// session builds one as responder; nothing is stored unless the message
// authenticates.
func (s *Service) Decrypt(ctx context.Context, peer domain.UserID, env domain.Envelope) ([]byte, error) {
	addr := domain.NewAddress(peer)
	unlock := s.lock(addr)
	defer unlock()

	header, sealed, err := wire.UnpackBody(env.Body)
	if err != nil {
		return nil, decryptErr(err)
	}
	switch env.Type {
	case domain.EnvelopeWhisper:
		h, err := wire.UnmarshalWhisperHeader(header)
		if err != nil {
			return nil, decryptErr(err)
		}
		sess, ok, err := s.keys.LoadSession(addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", addr, domain.ErrSessionNotFound)
		}
		return s.open(addr, sess, h, header, sealed)

	case domain.EnvelopePreKey:
		h, err := wire.UnmarshalPreKeyHeader(header)
		if err != nil {
			return nil, decryptErr(err)
		}
		peerIK, err := h.Identity()
		if err != nil {
			return nil, decryptErr(err)
		}
		sess, ok, err := s.keys.LoadSession(addr)
		if err != nil {
			return nil, err
		}
		if ok && sess.BaseKey == h.BaseKey && sess.RemoteIdentity.Equal(peerIK) {
			return s.open(addr, sess, h.Message, header, sealed)
		}
		return s.respond(ctx, addr, h, peerIK, header, sealed)

	default:
		return nil, decryptErr(fmt.Errorf("unknown envelope type %d", env.Type))
	}
}

// open decrypts with an existing session and commits the advanced state.
func (s *Service) open(
	addr domain.Address,
	sess domain.Session,
	h domain.RatchetHeader,
	header, sealed []byte,
) ([]byte, error) {
	work := sess.Clone()
	pt, err := ratchet.Decrypt(&work.State, work.AssociatedData, h, header, sealed)
	if err != nil {
		return nil, decryptErr(err)
	}
	work.PendingPreKey = nil
	if err := s.keys.StoreSession(addr, work); err != nil {
		return nil, err
	}
	s.log.Debugf("received message %d from %s", h.N, addr)
	return pt, nil
}

// respond builds a responder session from a PREKEY header.
//
// The message is authenticated before the sender's identity is checked
// against the pinned one, so a corrupted envelope is reported as
// ErrSessionDecrypt and only an authentic key change as ErrUntrustedIdentity.
// Nothing is consumed or stored unless both pass.
func (s *Service) respond(
	_ context.Context,
	addr domain.Address,
	h wire.PreKeyHeader,
	peerIK domain.IdentityPublicKey,
	header, sealed []byte,
) ([]byte, error) {
	id, err := s.keys.IdentityKeyPair()
	if err != nil {
		return nil, err
	}
	regID, err := s.keys.LocalRegistrationID()
	if err != nil {
		return nil, err
	}
	spk, ok, err := s.keys.LoadSignedPreKey(h.SignedPreKeyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decryptErr(fmt.Errorf("unknown signed prekey %d", h.SignedPreKeyID))
	}
	var opk *domain.OneTimePreKey
	if h.PreKeyID != nil {
		k, ok, err := s.keys.LoadPreKey(*h.PreKeyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, decryptErr(fmt.Errorf("one-time prekey %d is unknown or already used", *h.PreKeyID))
		}
		opk = &k
	}

	sk, err := x3dh.Respond(id, spk, opk, peerIK, h.BaseKey)
	if err != nil {
		return nil, decryptErr(err)
	}
	st := ratchet.InitAsResponder(sk, spk)
	memzero.Zero(sk)

	ad := x3dh.AssociatedData(peerIK, id.Public())
	pt, err := ratchet.Decrypt(&st, ad, h.Message, header, sealed)
	if err != nil {
		return nil, decryptErr(err)
	}

	trusted, err := s.keys.IsTrustedIdentity(addr, peerIK, domain.Receiving)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, fmt.Errorf("%s: %w", addr, domain.ErrUntrustedIdentity)
	}

	if opk != nil {
		if err := s.keys.RemovePreKey(opk.ID); err != nil {
			return nil, err
		}
	}
	if _, err := s.keys.SaveIdentity(addr, peerIK); err != nil {
		return nil, err
	}
	sess := domain.Session{
		LocalIdentity:        id.Public(),
		RemoteIdentity:       peerIK,
		RemoteRegistrationID: h.RegistrationID,
		LocalRegistrationID:  regID,
		AssociatedData:       ad,
		BaseKey:              h.BaseKey,
		State:                st,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.keys.StoreSession(addr, sess); err != nil {
		return nil, err
	}
	s.log.Debugf("established session with %s from prekey message", addr)
	return pt, nil
}

// Reset drops every session with peer. The pinned identity is kept.
func (s *Service) Reset(_ context.Context, peer domain.UserID) error {
	addr := domain.NewAddress(peer)
	unlock := s.lock(addr)
	defer unlock()
	if err := s.keys.RemoveAllSessions(peer); err != nil {
		return err
	}
	s.log.Infof("reset sessions with %s", peer)
	return nil
}

// PeerIdentity returns the identity pinned for peer.
func (s *Service) PeerIdentity(_ context.Context, peer domain.UserID) (domain.IdentityPublicKey, bool, error) {
	return s.keys.LoadIdentity(domain.NewAddress(peer))
}

// TrustIdentity pins key for peer after out-of-band verification. Sessions
// bound to a different key are dropped.
func (s *Service) TrustIdentity(_ context.Context, peer domain.UserID, key domain.IdentityPublicKey) error {
	addr := domain.NewAddress(peer)
	unlock := s.lock(addr)
	defer unlock()
	changed, err := s.keys.SaveIdentity(addr, key)
	if err != nil {
		return err
	}
	if changed {
		return s.keys.RemoveAllSessions(peer)
	}
	return nil
}

func decryptErr(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrSessionDecrypt, err)
}

// Compile-time assertion that Service implements domain.SessionManager.
var _ domain.SessionManager = (*Service)(nil)
